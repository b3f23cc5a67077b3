package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intel/internal/importer"
)

var (
	importSheet     string
	importBatchSize int
)

var importCmd = &cobra.Command{
	Use:   "import <source>",
	Short: "Load a registry extract (file path, http(s) or ftp URL)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		res, err := a.Importer.Import(ctx, args[0], importer.Options{
			Sheet:     importSheet,
			BatchSize: importBatchSize,
		})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		for _, re := range res.Errors {
			zap.L().Warn("rejected row", zap.Int("line", re.Line), zap.String("reason", re.Message))
		}
		zap.L().Info("import complete",
			zap.String("job_id", res.JobID),
			zap.Int("rows", res.Rows),
			zap.Int("rejected", res.Rejected),
			zap.Int("owners_created", res.OwnersCreated),
			zap.Int("owners_updated", res.OwnersUpdated),
			zap.Int("instruments", res.Instruments),
			zap.Int("new_instruments", res.NewInstruments),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 500, "instruments per upsert batch")
	rootCmd.AddCommand(importCmd)
}
