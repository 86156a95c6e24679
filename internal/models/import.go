package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// FormatForFile infers the import format from a file name extension.
func FormatForFile(name string) (ImportFormat, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ImportFormatCSV, true
	case ".xlsx":
		return ImportFormatXLSX, true
	default:
		return "", false
	}
}

// ImportStatus represents the status of an import job
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "PENDING"
	ImportStatusProcessing ImportStatus = "PROCESSING"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
	ImportStatusCancelled  ImportStatus = "CANCELLED"
)

// RowError records a validation error for a specific source row. Rows with
// errors are dropped from the stream.
type RowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku,omitempty"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RowWarning records a deviation that did not drop the row.
type RowWarning struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku,omitempty"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationReport summarizes the validator's two passes.
type ValidationReport struct {
	TotalRows   int          `json:"totalRows"`
	ValidRows   int          `json:"validRows"`
	DroppedRows int          `json:"droppedRows"`
	Errors      []RowError   `json:"errors,omitempty"`
	Warnings    []RowWarning `json:"warnings,omitempty"`
}

// Batch is a contiguous slice of products processed together. Index is
// 1-based; Total is the overall batch count.
type Batch struct {
	Index    int        `json:"index"`
	Total    int        `json:"total"`
	Products []*Product `json:"products"`
}

// OutcomeStatus is the terminal state of a product at the remote boundary.
type OutcomeStatus string

const (
	OutcomeSuccess    OutcomeStatus = "success"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeLinkFailed OutcomeStatus = "link-failed"
	OutcomeCancelled  OutcomeStatus = "cancelled"
)

// OutcomeKind tallies what role the product played in the upload.
type OutcomeKind string

const (
	KindSimple       OutcomeKind = "simple"
	KindConfigurable OutcomeKind = "configurable"
	KindVariation    OutcomeKind = "variation"
)

// UploadOutcome is the per-sku result of the upload phase.
type UploadOutcome struct {
	SKU      string        `json:"sku"`
	Row      int           `json:"row,omitempty"`
	Kind     OutcomeKind   `json:"kind"`
	Status   OutcomeStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
}

// UploadPhase identifies the uploader phase a progress event belongs to.
type UploadPhase string

const (
	PhaseSimple       UploadPhase = "simple"
	PhaseConfigurable UploadPhase = "configurable"
)

// Progress is emitted after each uploaded unit.
type Progress struct {
	Phase     UploadPhase `json:"phase"`
	Processed int         `json:"processed"`
	Total     int         `json:"total"`
}

// KindTally counts outcomes per product kind.
type KindTally struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// MaxReportedErrors caps each error list in the final report.
const MaxReportedErrors = 50

// ImportReport is the authoritative result of a pipeline run. It is a plain
// value; rendering is the caller's concern.
type ImportReport struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`

	Simple       KindTally `json:"simple"`
	Configurable KindTally `json:"configurable"`
	Variation    KindTally `json:"variation"`

	LinkedGroups     int `json:"linkedGroups"`
	LinkFailedGroups int `json:"linkFailedGroups"`

	Outcomes         []UploadOutcome `json:"outcomes,omitempty"`
	ValidationErrors []RowError      `json:"validationErrors,omitempty"`
	Warnings         []RowWarning    `json:"warnings,omitempty"`
	UploadErrors     []UploadOutcome `json:"uploadErrors,omitempty"`

	UniqueBrands     []string `json:"uniqueBrands,omitempty"`
	UniqueCategories []string `json:"uniqueCategories,omitempty"`

	WasCancelled bool  `json:"wasCancelled"`
	ProcessingMs int64 `json:"processingMs"`
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, number, enum
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// CatalogImportColumns returns the canonical column set for catalog import.
func CatalogImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "sku", Description: "Unique product SKU", Required: true, Type: "string", Example: "WB-040-BLU"},
		{Name: "name", Description: "Product name", Required: true, Type: "string", Example: "Driven Backpack"},
		{Name: "product_type", Description: "simple, configurable, virtual or downloadable", Required: true, Type: "enum", Example: "simple"},
		{Name: "attribute_set_code", Description: "Attribute set code (Default, Bag, ...)", Required: false, Type: "string", Example: "Bag"},
		{Name: "price", Description: "Product price", Required: false, Type: "number", Example: "36.00"},
		{Name: "product_online", Description: "1/enabled or 2/disabled", Required: false, Type: "enum", Example: "1"},
		{Name: "visibility", Description: "not-visible, catalog, search or catalog-and-search", Required: false, Type: "enum", Example: "catalog-and-search"},
		{Name: "weight", Description: "Product weight (kg)", Required: false, Type: "number", Example: "1.2"},
		{Name: "description", Description: "Long description", Required: false, Type: "string", Example: ""},
		{Name: "short_description", Description: "Short description", Required: false, Type: "string", Example: ""},
		{Name: "country_of_manufacture", Description: "ISO country name or code", Required: false, Type: "string", Example: "IT"},
		{Name: "categories", Description: "Comma-separated category ids or paths", Required: false, Type: "string", Example: "Default Category/Gear/Bags"},
		{Name: "qty", Description: "Stock quantity", Required: false, Type: "number", Example: "100"},
		{Name: "additional_attributes", Description: "k=v pairs separated by commas", Required: false, Type: "string", Example: "brand=Driven,techno_ref=TR-9"},
		{Name: "configurable_variations", Description: "sku=S1,axis=val|sku=S2,axis=val", Required: false, Type: "string", Example: ""},
	}
}

// CatalogImportTemplate returns the template definition for the catalog file.
func CatalogImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "catalog",
		Version: "1.0",
		Columns: CatalogImportColumns(),
	}
}

// ImportJob is the persisted record of one pipeline run.
type ImportJob struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Status     ImportStatus `gorm:"type:varchar(20);index" json:"status"`
	FileName   string       `gorm:"type:varchar(255)" json:"fileName"`
	TotalRows  int          `json:"totalRows"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Report     *JSON        `gorm:"type:jsonb" json:"report,omitempty"`
	Error      *string      `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	FinishedAt *time.Time   `json:"finishedAt,omitempty"`
}

// Error represents an API error payload.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope handlers return on failure.
type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}
