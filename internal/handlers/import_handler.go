package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/clients"
	"catalog-import-service/internal/config"
	"catalog-import-service/internal/events"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/pipeline"
	"catalog-import-service/internal/repository"
)

const (
	MaxBatchSize   = 500 // Upper bound for the batchSize form field
	MaxConcurrency = 20  // Upper bound for the concurrency form field
)

type ImportHandler struct {
	repo      *repository.ImportJobsRepository
	client    clients.CommerceClient
	resolver  catalog.CategoryResolver
	publisher *events.Publisher
	cfg       *config.Config
	logger    *logrus.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

func NewImportHandler(repo *repository.ImportJobsRepository, client clients.CommerceClient, resolver catalog.CategoryResolver, publisher *events.Publisher, cfg *config.Config, logger *logrus.Logger) *ImportHandler {
	return &ImportHandler{
		repo:      repo,
		client:    client,
		resolver:  resolver,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		running:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// GetImportTemplate returns the import template definition or file
// GET /api/v1/catalog/import/template
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	template := models.CatalogImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template)
	case "xlsx":
		h.generateXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// generateCSVTemplate generates and downloads a CSV template (headers only)
func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.csv")

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

// generateXLSXTemplate generates and downloads an Excel template
func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Products"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 22)
	}

	// Add Instructions sheet
	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", "Catalog Import Instructions")

	f.SetCellValue("Instructions", "A3", "PRODUCT TYPES:")
	f.SetCellValue("Instructions", "A4", "- simple: a standalone sellable product.")
	f.SetCellValue("Instructions", "A5", "- configurable: a parent product whose variations are listed in configurable_variations.")
	f.SetCellValue("Instructions", "A6", "- Every variation sku referenced by a configurable row must also appear as its own simple row.")

	f.SetCellValue("Instructions", "A8", "CATEGORIES:")
	f.SetCellValue("Instructions", "A9", "Use numeric category ids or full paths like 'Default Category/Gear/Bags', comma separated.")

	f.SetCellValue("Instructions", "A11", "Column Definitions:")
	f.SetCellValue("Instructions", "A12", "Column")
	f.SetCellValue("Instructions", "B12", "Description")
	f.SetCellValue("Instructions", "C12", "Required")
	f.SetCellValue("Instructions", "D12", "Type")
	f.SetCellValue("Instructions", "E12", "Example")

	for i, col := range template.Columns {
		row := i + 13
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.xlsx")

	f.Write(c.Writer)
}

// ImportCatalog accepts a CSV/XLSX catalog file and runs the pipeline.
// POST /api/v1/catalog/import
// validateOnly=true runs parse+validate synchronously; otherwise the upload
// runs as an async job and the response carries the job id.
func (h *ImportHandler) ImportCatalog(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_REQUIRED",
				Message: "Please upload a CSV or Excel file",
			},
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "READ_ERROR",
				Message: err.Error(),
			},
		})
		return
	}

	opts := h.buildOptions(c)
	validateOnly := c.DefaultPostForm("validateOnly", "false") == "true"

	if validateOnly {
		h.validateCatalog(c, header.Filename, data, opts)
		return
	}

	job := &models.ImportJob{
		ID:       uuid.New(),
		Status:   models.ImportStatusPending,
		FileName: header.Filename,
	}
	if err := h.repo.Create(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "JOB_CREATE_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.running[job.ID] = cancel
	h.mu.Unlock()

	h.publisher.PublishImportStarted(job)
	go h.runJob(jobCtx, job, data, opts)

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"jobId":   job.ID,
		"status":  job.Status,
	})
}

// validateCatalog runs parse+normalize+validate without touching the remote.
func (h *ImportHandler) validateCatalog(c *gin.Context, filename string, data []byte, opts pipeline.Options) {
	source, err := newRowReader(filename, data)
	if err != nil {
		respondParseError(c, err)
		return
	}

	prepared, err := pipeline.Prepare(c.Request.Context(), source, opts, h.logger)
	if err != nil {
		respondParseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"validation": prepared.Validation,
	})
}

// runJob drives the pipeline for an async job and persists the outcome.
func (h *ImportHandler) runJob(ctx context.Context, job *models.ImportJob, data []byte, opts pipeline.Options) {
	defer func() {
		h.mu.Lock()
		delete(h.running, job.ID)
		h.mu.Unlock()
	}()

	log := h.logger.WithField("jobId", job.ID.String())

	// Progress snapshots go to Redis so polling never touches the DB.
	opts.Progress = func(p models.Progress) {
		snapCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.repo.SaveProgress(snapCtx, job.ID, p); err != nil {
			log.WithError(err).Debug("Failed to save progress snapshot")
		}
	}

	if err := h.repo.UpdateStatus(ctx, job.ID, models.ImportStatusProcessing); err != nil {
		log.WithError(err).Error("Failed to mark job as processing")
	}

	source, err := newRowReader(job.FileName, data)
	if err == nil {
		var report *models.ImportReport
		report, err = pipeline.Run(ctx, source, opts, h.client, h.logger)
		if err == nil {
			h.finishJob(job, report)
			return
		}
	}

	// Only parse failures land here; everything else is in the report.
	log.WithError(err).Error("Import job failed")
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if ferr := h.repo.Finish(finishCtx, job.ID, models.ImportStatusFailed, nil, err); ferr != nil {
		log.WithError(ferr).Error("Failed to persist job failure")
	}
	h.publisher.PublishImportFailed(job, err)
}

func (h *ImportHandler) finishJob(job *models.ImportJob, report *models.ImportReport) {
	log := h.logger.WithField("jobId", job.ID.String())

	status := models.ImportStatusCompleted
	if report.WasCancelled {
		status = models.ImportStatusCancelled
	}

	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.repo.Finish(finishCtx, job.ID, status, report, nil); err != nil {
		log.WithError(err).Error("Failed to persist job result")
	}

	if report.WasCancelled {
		h.publisher.PublishImportCancelled(job)
	} else {
		h.publisher.PublishImportCompleted(job, report)
	}
}

// GetJob returns the persisted job record, report included once finished.
// GET /api/v1/catalog/import/jobs/:id
func (h *ImportHandler) GetJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondJobNotFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "JOB_LOOKUP_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job":     job,
	})
}

// ListJobs returns recent jobs, newest first.
// GET /api/v1/catalog/import/jobs
func (h *ImportHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := h.repo.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "JOB_LOOKUP_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"jobs":    jobs,
	})
}

// GetJobProgress returns the latest progress snapshot for a running job.
// GET /api/v1/catalog/import/jobs/:id/progress
func (h *ImportHandler) GetJobProgress(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	progress, err := h.repo.GetProgress(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			respondJobNotFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "PROGRESS_LOOKUP_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"progress": progress,
	})
}

// CancelJob stops a running job. In-flight requests are awaited; remaining
// products are reported as cancelled.
// POST /api/v1/catalog/import/jobs/:id/cancel
func (h *ImportHandler) CancelJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	h.mu.Lock()
	cancel, running := h.running[id]
	h.mu.Unlock()

	if !running {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "JOB_NOT_RUNNING",
				Message: "Job is not running",
			},
		})
		return
	}

	cancel()
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"jobId":   id,
		"status":  "cancelling",
	})
}

// buildOptions merges service defaults with per-request form overrides.
func (h *ImportHandler) buildOptions(c *gin.Context) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.BatchSize = h.cfg.ImportBatchSize
	opts.Concurrency = h.cfg.ImportConcurrency
	opts.MaxAttempts = h.cfg.ImportMaxAttempts
	opts.BaseDelay = h.cfg.ImportBaseDelay
	opts.InterBatchDelay = h.cfg.ImportInterBatchDelay
	opts.ResolveCategoryPath = h.resolver
	if h.cfg.BatchFileDir != "" {
		opts.EmitBatchFiles = true
		opts.BatchDir = h.cfg.BatchFileDir
	}

	if bs := c.DefaultPostForm("batchSize", ""); bs != "" {
		if parsed, err := strconv.Atoi(bs); err == nil && parsed > 0 {
			opts.BatchSize = parsed
			if opts.BatchSize > MaxBatchSize {
				opts.BatchSize = MaxBatchSize
			}
		}
	}
	if cc := c.DefaultPostForm("concurrency", ""); cc != "" {
		if parsed, err := strconv.Atoi(cc); err == nil && parsed > 0 {
			opts.Concurrency = parsed
			if opts.Concurrency > MaxConcurrency {
				opts.Concurrency = MaxConcurrency
			}
		}
	}
	if c.DefaultPostForm("includeSimple", "true") == "false" {
		opts.IncludeSimple = false
	}
	if c.DefaultPostForm("includeConfigurable", "true") == "false" {
		opts.IncludeConfigurable = false
	}

	if h.client != nil {
		opts.KnownBrands = h.fetchKnownBrands()
	}
	return opts
}

// fetchKnownBrands loads the remote brand list for unknown-brand warnings.
// Best effort; a failure just disables the warning.
func (h *ImportHandler) fetchKnownBrands() map[string]bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	brands, err := h.client.GetBrands(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to fetch brand list, brand validation disabled")
		return nil
	}
	known := make(map[string]bool, len(brands))
	for _, b := range brands {
		known[strings.ToLower(b.Label)] = true
	}
	return known
}

// newRowReader picks a reader by file extension.
func newRowReader(filename string, data []byte) (catalog.RowReader, error) {
	format, ok := models.FormatForFile(filename)
	if !ok {
		return nil, &catalog.ParseError{Message: "only CSV and XLSX files are supported"}
	}
	if format == models.ImportFormatXLSX {
		return catalog.NewXLSXRowReader(bytes.NewReader(data))
	}
	return catalog.NewCSVRowReader(bytes.NewReader(data))
}

func respondParseError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "PARSE_ERROR",
			Message: err.Error(),
		},
	})
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_JOB_ID",
				Message: "Job id must be a valid UUID",
			},
		})
		return uuid.Nil, false
	}
	return id, true
}

func respondJobNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "JOB_NOT_FOUND",
			Message: "No job with that id",
		},
	})
}
