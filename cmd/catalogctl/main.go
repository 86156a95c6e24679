// catalogctl runs the catalog import pipeline from the command line,
// without the HTTP service around it.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"catalog-import-service/internal/catalog"
	"catalog-import-service/internal/clients/magento"
	"catalog-import-service/internal/models"
	"catalog-import-service/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Magento catalog import CLI",
	Long: `Imports a product catalog CSV or XLSX file into a Magento instance:
parse, normalize, validate, split configurables, batch and upload with
retries and rate limiting.`,
}

var (
	importFile        string
	importBaseURL     string
	importToken       string
	importBatchSize   int
	importConcurrency int
	importMaxAttempts int
	importDryRun      bool
	importSkipSimple  bool
	importSkipConfig  bool
	importEmitBatches bool
	importOutDir      string
	importVerbose     bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a catalog file into Magento",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		if importVerbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.WarnLevel)
		}

		file, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("failed to open catalog file: %w", err)
		}
		defer file.Close()

		var source catalog.RowReader
		if format, _ := models.FormatForFile(importFile); format == models.ImportFormatXLSX {
			source, err = catalog.NewXLSXRowReader(file)
		} else {
			source, err = catalog.NewCSVRowReader(file)
		}
		if err != nil {
			return fmt.Errorf("failed to read catalog file: %w", err)
		}

		opts := pipeline.DefaultOptions()
		opts.BatchSize = importBatchSize
		opts.Concurrency = importConcurrency
		opts.MaxAttempts = importMaxAttempts
		opts.IncludeSimple = !importSkipSimple
		opts.IncludeConfigurable = !importSkipConfig
		if importEmitBatches {
			opts.EmitBatchFiles = true
			opts.BatchDir = importOutDir
		}

		// Ctrl-C cancels cleanly: in-flight requests finish, the rest is
		// reported as cancelled.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if importDryRun {
			prepared, err := pipeline.Prepare(ctx, source, opts, logger)
			if err != nil {
				return err
			}
			printValidation(prepared.Validation)
			return nil
		}

		client := magento.NewClient(magento.Config{
			BaseURL:     importBaseURL,
			AccessToken: importToken,
		})
		opts.ResolveCategoryPath = client.ResolveCategoryPath

		start := time.Now()
		report, err := pipeline.Run(ctx, source, opts, client, logger)
		if err != nil {
			return err
		}
		printReport(report, time.Since(start))
		if report.Failed > 0 {
			os.Exit(1)
		}
		return nil
	},
}

var templateFormat string

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print the import template header row",
	RunE: func(cmd *cobra.Command, args []string) error {
		template := models.CatalogImportTemplate()
		switch templateFormat {
		case "csv":
			writer := csv.NewWriter(os.Stdout)
			headers := make([]string, len(template.Columns))
			for i, col := range template.Columns {
				headers[i] = col.Name
			}
			writer.Write(headers)
			writer.Flush()
			return writer.Error()
		default:
			for _, col := range template.Columns {
				marker := " "
				if col.Required {
					marker = "*"
				}
				fmt.Printf("%s %-24s %s\n", marker, col.Name, col.Description)
			}
			return nil
		}
	},
}

func printValidation(v *models.ValidationReport) {
	fmt.Printf(`
=== Validation Report ===
Rows:      %d
Valid:     %d
Dropped:   %d
Errors:    %d
Warnings:  %d
=========================
`, v.TotalRows, v.ValidRows, v.DroppedRows, len(v.Errors), len(v.Warnings))

	for _, e := range v.Errors {
		fmt.Printf("  [error] row %d %s: %s\n", e.Row, e.SKU, e.Message)
	}
	for _, w := range v.Warnings {
		fmt.Printf("  [warn] row %d %s: %s\n", w.Row, w.SKU, w.Message)
	}
}

func printReport(r *models.ImportReport, elapsed time.Duration) {
	for _, w := range r.Warnings {
		fmt.Printf("  [warn] row %d %s: %s\n", w.Row, w.SKU, w.Message)
	}
	for _, e := range r.ValidationErrors {
		fmt.Printf("  [error] row %d %s: %s\n", e.Row, e.SKU, e.Message)
	}
	for _, o := range r.UploadErrors {
		fmt.Printf("  [fail] %s (%s, %d attempts): %s\n", o.SKU, o.Kind, o.Attempts, o.Error)
	}

	status := "completed"
	if r.WasCancelled {
		status = "cancelled"
	}
	fmt.Printf(`
=== Import Report ===
Status:         %s
Uploaded:       %d of %d
Failed:         %d
Cancelled:      %d
  Simple:       %d ok / %d failed
  Configurable: %d ok / %d failed
  Variation:    %d ok / %d failed
Linked groups:  %d (%d link failures)
Total time:     %s
=====================
`, status, r.Successful, r.Total, r.Failed, r.Cancelled,
		r.Simple.Successful, r.Simple.Failed,
		r.Configurable.Successful, r.Configurable.Failed,
		r.Variation.Successful, r.Variation.Failed,
		r.LinkedGroups, r.LinkFailedGroups,
		elapsed.Round(time.Millisecond))
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Catalog CSV or XLSX file (required)")
	importCmd.MarkFlagRequired("file")
	importCmd.Flags().StringVar(&importBaseURL, "base-url", os.Getenv("MAGENTO_BASE_URL"), "Magento base URL")
	importCmd.Flags().StringVar(&importToken, "token", os.Getenv("MAGENTO_ACCESS_TOKEN"), "Magento integration access token")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 100, "Products per upload batch")
	importCmd.Flags().IntVar(&importConcurrency, "concurrency", 5, "Concurrent create requests per batch")
	importCmd.Flags().IntVar(&importMaxAttempts, "max-attempts", 3, "Attempts per product for transient failures")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate only, do not upload")
	importCmd.Flags().BoolVar(&importSkipSimple, "skip-simple", false, "Skip standalone simple products")
	importCmd.Flags().BoolVar(&importSkipConfig, "skip-configurable", false, "Skip configurable products and their variations")
	importCmd.Flags().BoolVar(&importEmitBatches, "emit-batches", false, "Write per-batch CSV files before uploading")
	importCmd.Flags().StringVar(&importOutDir, "out-dir", ".", "Directory for batch CSV files")
	importCmd.Flags().BoolVar(&importVerbose, "verbose", false, "Log every request")
	rootCmd.AddCommand(importCmd)

	templateCmd.Flags().StringVar(&templateFormat, "format", "text", "Output format: text or csv")
	rootCmd.AddCommand(templateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
