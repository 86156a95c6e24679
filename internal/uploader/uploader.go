package uploader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/models"
)

// Options bound the uploader's parallelism and pacing.
type Options struct {
	BatchSize       int           // Products per dispatch batch (default 100)
	Concurrency     int           // In-flight creations per batch (default 5)
	InterBatchDelay time.Duration // Cool-off between batches (default 500ms)
	Progress        func(models.Progress)
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.InterBatchDelay < 0 {
		o.InterBatchDelay = 0
	}
}

// Result aggregates the upload phase. Outcomes are ordered by source row,
// so the report lists skus in input order.
type Result struct {
	Outcomes         []models.UploadOutcome
	LinkedGroups     int
	LinkFailedGroups int
	Cancelled        bool
}

// Uploader turns validated products into remote state. Simples upload first,
// then configurable groups: parent, children, link-up.
type Uploader struct {
	client  clients.CommerceClient
	retrier *Retrier
	opts    Options
	log     *logrus.Entry

	mu       sync.Mutex
	outcomes []models.UploadOutcome
}

// New builds an uploader around an injected client and retry policy.
func New(client clients.CommerceClient, retrier *Retrier, opts Options, logger *logrus.Logger) *Uploader {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()
	return &Uploader{
		client:  client,
		retrier: retrier,
		opts:    opts,
		log:     logger.WithField("component", "uploader"),
	}
}

// Run drives both phases and drains before returning. Cancellation stops new
// work; in-flight creations complete and the partial result is returned.
func (u *Uploader) Run(ctx context.Context, simples []*models.Product, groups []models.ConfigurableGroup) *Result {
	result := &Result{}
	u.outcomes = nil

	simpleTotal := len(simples)
	u.runCreatePhase(ctx, models.PhaseSimple, simples, models.KindSimple, simpleTotal, newCounter())

	u.runConfigurablePhase(ctx, groups, result)

	u.mu.Lock()
	sort.SliceStable(u.outcomes, func(i, j int) bool { return u.outcomes[i].Row < u.outcomes[j].Row })
	result.Outcomes = u.outcomes
	u.mu.Unlock()

	result.Cancelled = ctx.Err() != nil
	return result
}

// counter tracks processed units for progress events.
type counter struct {
	mu sync.Mutex
	n  int
}

func newCounter() *counter { return &counter{} }

func (c *counter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// runCreatePhase creates products in dispatch batches with bounded
// concurrency and the inter-batch cool-off. Successfully created skus are
// returned.
func (u *Uploader) runCreatePhase(ctx context.Context, phase models.UploadPhase, products []*models.Product, kind models.OutcomeKind, total int, progress *counter) map[string]bool {
	succeeded := make(map[string]bool, len(products))
	if len(products) == 0 {
		return succeeded
	}

	// In-flight calls survive cancellation; only new work stops.
	callCtx := context.WithoutCancel(ctx)

	for start := 0; start < len(products); start += u.opts.BatchSize {
		end := start + u.opts.BatchSize
		if end > len(products) {
			end = len(products)
		}
		batch := products[start:end]

		if ctx.Err() != nil {
			for _, p := range batch {
				u.recordCancelled(p, kind)
				u.emitProgress(phase, progress.inc(), total)
			}
			continue
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, u.opts.Concurrency)
		var mu sync.Mutex

		for _, p := range batch {
			if ctx.Err() != nil {
				u.recordCancelled(p, kind)
				u.emitProgress(phase, progress.inc(), total)
				continue
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(p *models.Product) {
				defer wg.Done()
				defer func() { <-sem }()

				res := u.retrier.Do(ctx, func(ctx context.Context) error {
					_, err := u.client.CreateProduct(callCtx, p)
					return err
				})
				if res.Err == nil {
					mu.Lock()
					succeeded[p.SKU] = true
					mu.Unlock()
				}
				u.recordCreate(p, kind, res)
				u.emitProgress(phase, progress.inc(), total)
			}(p)
		}
		wg.Wait()

		if end < len(products) && u.opts.InterBatchDelay > 0 && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-time.After(u.opts.InterBatchDelay):
			}
		}
	}

	return succeeded
}

// runConfigurablePhase processes groups in input order: parent create,
// children create, link-up.
func (u *Uploader) runConfigurablePhase(ctx context.Context, groups []models.ConfigurableGroup, result *Result) {
	total := 0
	for _, g := range groups {
		total += 1 + len(g.Children)
	}
	if total == 0 {
		return
	}
	progress := newCounter()
	callCtx := context.WithoutCancel(ctx)

	for _, group := range groups {
		parent := group.Parent

		if ctx.Err() != nil {
			u.recordCancelled(parent, models.KindConfigurable)
			u.emitProgress(models.PhaseConfigurable, progress.inc(), total)
			for _, child := range group.Children {
				u.recordCancelled(child, models.KindVariation)
				u.emitProgress(models.PhaseConfigurable, progress.inc(), total)
			}
			continue
		}

		parentRes := u.retrier.Do(ctx, func(ctx context.Context) error {
			_, err := u.client.CreateProduct(callCtx, parent)
			return err
		})
		u.emitProgress(models.PhaseConfigurable, progress.inc(), total)

		if parentRes.Err != nil {
			// Parent failed: the whole group is skipped.
			u.recordCreate(parent, models.KindConfigurable, parentRes)
			for _, child := range group.Children {
				u.record(models.UploadOutcome{
					SKU:    child.SKU,
					Row:    child.SourceRow,
					Kind:   models.KindVariation,
					Status: models.OutcomeFailed,
					Error:  fmt.Sprintf("parent %s was not created: %v", parent.SKU, parentRes.Err),
				})
				u.emitProgress(models.PhaseConfigurable, progress.inc(), total)
			}
			continue
		}

		if len(group.Children) == 0 {
			// Zero-variation parents were already flagged as a warning; the
			// bare parent still exists remotely.
			u.record(models.UploadOutcome{
				SKU:      parent.SKU,
				Row:      parent.SourceRow,
				Kind:     models.KindConfigurable,
				Status:   models.OutcomeSuccess,
				Attempts: parentRes.Attempts,
			})
			continue
		}

		created := u.runCreatePhase(ctx, models.PhaseConfigurable, group.Children, models.KindVariation, total, progress)

		linked := make([]string, 0, len(group.Children))
		for _, child := range group.Children {
			if created[child.SKU] {
				linked = append(linked, child.SKU)
			}
		}

		if len(linked) == 0 {
			if ctx.Err() != nil {
				// The run was cancelled before any child could be created;
				// the bare parent exists remotely but link-up never ran.
				u.record(models.UploadOutcome{
					SKU:      parent.SKU,
					Row:      parent.SourceRow,
					Kind:     models.KindConfigurable,
					Status:   models.OutcomeCancelled,
					Error:    "cancelled before children could be linked",
					Attempts: parentRes.Attempts,
				})
				continue
			}
			u.record(models.UploadOutcome{
				SKU:      parent.SKU,
				Row:      parent.SourceRow,
				Kind:     models.KindConfigurable,
				Status:   models.OutcomeLinkFailed,
				Error:    "no children were created, nothing to link",
				Attempts: parentRes.Attempts,
			})
			result.LinkFailedGroups++
			continue
		}

		linkRes := u.retrier.Do(ctx, func(ctx context.Context) error {
			return u.client.LinkConfigurableChildren(callCtx, parent.SKU, linked)
		})
		if linkRes.Err != nil {
			// Children stay as hidden simples; only the parent is marked.
			u.record(models.UploadOutcome{
				SKU:      parent.SKU,
				Row:      parent.SourceRow,
				Kind:     models.KindConfigurable,
				Status:   models.OutcomeLinkFailed,
				Error:    fmt.Sprintf("failed to link children: %v", linkRes.Err),
				Attempts: parentRes.Attempts,
			})
			result.LinkFailedGroups++
			u.log.WithFields(logrus.Fields{
				"parent":   parent.SKU,
				"children": linked,
			}).Error("configurable link-up failed")
			continue
		}

		u.record(models.UploadOutcome{
			SKU:      parent.SKU,
			Row:      parent.SourceRow,
			Kind:     models.KindConfigurable,
			Status:   models.OutcomeSuccess,
			Attempts: parentRes.Attempts,
		})
		result.LinkedGroups++
	}
}

func (u *Uploader) recordCreate(p *models.Product, kind models.OutcomeKind, res *RetryResult) {
	outcome := models.UploadOutcome{
		SKU:      p.SKU,
		Row:      p.SourceRow,
		Kind:     kind,
		Status:   models.OutcomeSuccess,
		Attempts: res.Attempts,
	}
	if res.Err != nil {
		outcome.Status = models.OutcomeFailed
		outcome.Error = res.Err.Error()
	}
	u.record(outcome)
}

func (u *Uploader) recordCancelled(p *models.Product, kind models.OutcomeKind) {
	u.record(models.UploadOutcome{
		SKU:    p.SKU,
		Row:    p.SourceRow,
		Kind:   kind,
		Status: models.OutcomeCancelled,
	})
}

func (u *Uploader) record(outcome models.UploadOutcome) {
	u.mu.Lock()
	u.outcomes = append(u.outcomes, outcome)
	u.mu.Unlock()
}

func (u *Uploader) emitProgress(phase models.UploadPhase, processed, total int) {
	if u.opts.Progress == nil {
		return
	}
	u.opts.Progress(models.Progress{Phase: phase, Processed: processed, Total: total})
}
