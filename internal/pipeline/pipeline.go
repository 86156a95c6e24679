// Package pipeline wires the catalog import stages together and exposes the
// programmatic entrypoint: Run(source, options, client) -> ImportReport.
package pipeline

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/uploader"
)

// Options enumerates every knob of a pipeline run. Use DefaultOptions as the
// base and override what the caller needs.
type Options struct {
	BatchSize       int
	Concurrency     int
	MaxAttempts     int
	BaseDelay       time.Duration
	InterBatchDelay time.Duration

	IncludeSimple       bool
	IncludeConfigurable bool

	// EmitBatchFiles writes catalog_batch_{i}_of_{N}.csv artifacts to
	// BatchDir before uploading.
	EmitBatchFiles bool
	BatchDir       string

	// AttributeSets overrides the built-in code table when non-nil.
	AttributeSets map[string]int
	// ResolveCategoryPath converts category path tokens to remote ids.
	// Without it, paths are forwarded verbatim.
	ResolveCategoryPath catalog.CategoryResolver
	// KnownBrands enables unknown-brand warnings. Keys are lowercased.
	KnownBrands map[string]bool

	Progress func(models.Progress)
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:           100,
		Concurrency:         5,
		MaxAttempts:         3,
		BaseDelay:           1 * time.Second,
		InterBatchDelay:     500 * time.Millisecond,
		IncludeSimple:       true,
		IncludeConfigurable: true,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = def.BaseDelay
	}
	if o.InterBatchDelay < 0 {
		o.InterBatchDelay = 0
	}
}

// Prepared is the validated, split form of the input stream, used by both the
// dry-run path and the upload path.
type Prepared struct {
	Products   []*models.Product
	Valid      []*models.Product
	Simples    []*models.Product
	Groups     []models.ConfigurableGroup
	Validation *models.ValidationReport
	Warnings   []models.RowWarning
}

// Prepare parses, normalizes, validates and splits the source. The only
// error it can return is a *catalog.ParseError.
func Prepare(ctx context.Context, source catalog.RowReader, opts Options, logger *logrus.Logger) (*Prepared, error) {
	normalizer := catalog.NewNormalizer(catalog.NormalizerConfig{
		AttributeSets:   opts.AttributeSets,
		ResolveCategory: opts.ResolveCategoryPath,
		KnownBrands:     opts.KnownBrands,
	}, logger)

	var products []*models.Product
	var warnings []models.RowWarning
	for {
		row, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		product, rowWarnings := normalizer.Normalize(ctx, row)
		products = append(products, product)
		warnings = append(warnings, rowWarnings...)
	}

	valid, validation := catalog.NewValidator(logger).Validate(products)
	validation.Warnings = append(warnings, validation.Warnings...)

	simples, groups := catalog.Split(valid)
	if !opts.IncludeSimple {
		simples = nil
	}
	if !opts.IncludeConfigurable {
		groups = nil
	}

	return &Prepared{
		Products:   products,
		Valid:      valid,
		Simples:    simples,
		Groups:     groups,
		Validation: validation,
		Warnings:   validation.Warnings,
	}, nil
}

// Run executes the whole pipeline. Only parse failures surface as an error;
// every other outcome is in the report. Cancellation through ctx yields a
// partial report.
func Run(ctx context.Context, source catalog.RowReader, opts Options, client clients.CommerceClient, logger *logrus.Logger) (*models.ImportReport, error) {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()
	start := time.Now()

	prepared, err := Prepare(ctx, source, opts, logger)
	if err != nil {
		return nil, err
	}

	if opts.EmitBatchFiles && opts.BatchDir != "" {
		batches := catalog.MakeBatches(prepared.Valid, opts.BatchSize)
		if _, err := catalog.EmitBatchFiles(opts.BatchDir, batches); err != nil {
			logger.WithError(err).Error("failed to emit batch artifacts")
		}
	}

	up := uploader.New(client, uploader.NewRetrier(uploader.RetryPolicy{
		MaxAttempts: opts.MaxAttempts,
		BaseDelay:   opts.BaseDelay,
	}), uploader.Options{
		BatchSize:       opts.BatchSize,
		Concurrency:     opts.Concurrency,
		InterBatchDelay: opts.InterBatchDelay,
		Progress:        opts.Progress,
	}, logger)

	result := up.Run(ctx, prepared.Simples, prepared.Groups)

	report := buildReport(prepared, result)
	report.ProcessingMs = time.Since(start).Milliseconds()

	logger.WithFields(logrus.Fields{
		"total":      report.Total,
		"successful": report.Successful,
		"failed":     report.Failed,
		"cancelled":  report.Cancelled,
		"elapsed_ms": report.ProcessingMs,
	}).Info("catalog import finished")

	return report, nil
}

func buildReport(prepared *Prepared, result *uploader.Result) *models.ImportReport {
	report := &models.ImportReport{
		Total:            len(result.Outcomes),
		LinkedGroups:     result.LinkedGroups,
		LinkFailedGroups: result.LinkFailedGroups,
		Outcomes:         result.Outcomes,
		WasCancelled:     result.Cancelled,
	}

	for _, outcome := range result.Outcomes {
		tally := tallyFor(report, outcome.Kind)
		tally.Total++
		switch outcome.Status {
		case models.OutcomeSuccess:
			report.Successful++
			tally.Successful++
		case models.OutcomeCancelled:
			report.Cancelled++
			tally.Cancelled++
		default:
			report.Failed++
			tally.Failed++
			if len(report.UploadErrors) < models.MaxReportedErrors {
				report.UploadErrors = append(report.UploadErrors, outcome)
			}
		}
	}

	report.ValidationErrors = capErrors(prepared.Validation.Errors)
	report.Warnings = capWarnings(prepared.Warnings)
	report.UniqueBrands, report.UniqueCategories = collectDiagnostics(prepared.Products)
	return report
}

func tallyFor(report *models.ImportReport, kind models.OutcomeKind) *models.KindTally {
	switch kind {
	case models.KindConfigurable:
		return &report.Configurable
	case models.KindVariation:
		return &report.Variation
	default:
		return &report.Simple
	}
}

func capErrors(errs []models.RowError) []models.RowError {
	if len(errs) > models.MaxReportedErrors {
		return errs[:models.MaxReportedErrors]
	}
	return errs
}

func capWarnings(warns []models.RowWarning) []models.RowWarning {
	if len(warns) > models.MaxReportedErrors {
		return warns[:models.MaxReportedErrors]
	}
	return warns
}

// collectDiagnostics gathers the distinct brands and category tokens seen in
// the normalized stream, dropped rows included.
func collectDiagnostics(products []*models.Product) ([]string, []string) {
	brandSet := make(map[string]bool)
	categorySet := make(map[string]bool)
	for _, p := range products {
		if brand := p.CustomAttributes["brand"]; brand != "" {
			brandSet[brand] = true
		}
		for _, ref := range p.CategoryRefs {
			if ref.Path != "" {
				categorySet[ref.Path] = true
			} else if ref.ID > 0 {
				categorySet[strconv.Itoa(ref.ID)] = true
			}
		}
	}
	return sortedKeys(brandSet), sortedKeys(categorySet)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
