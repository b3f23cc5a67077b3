package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	queueDate  string
	queueLimit int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Daily prospecting queue",
}

var queueGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build the queue for a date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		date := queueDate
		if date == "" {
			date = a.Queue.Today()
		}
		limit := queueLimit
		if limit < 0 {
			limit = cfg.Queue.DailyCapacity
		}
		res, err := a.Queue.Generate(ctx, date, limit)
		if err != nil {
			return err
		}
		zap.L().Info("queue generated",
			zap.String("date", res.Date),
			zap.Int("created", res.Created),
			zap.Int("total", len(res.Items)),
			zap.String("job_id", res.JobID),
		)
		formatQueue(os.Stdout, res.Items)
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the queue for a date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		date := queueDate
		if date == "" {
			date = a.Queue.Today()
		}
		items, err := a.Queue.List(ctx, date)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			zap.L().Info("queue is empty, run 'queue generate' first", zap.String("date", date))
			return nil
		}
		formatQueue(os.Stdout, items)
		return nil
	},
}

func init() {
	queueCmd.PersistentFlags().StringVar(&queueDate, "date", "", "queue date YYYY-MM-DD (default today)")
	queueGenerateCmd.Flags().IntVar(&queueLimit, "limit", -1, "cap on the day's items; -1 uses queue.daily_capacity, 0 is unbounded")
	queueCmd.AddCommand(queueGenerateCmd, queueShowCmd)
	rootCmd.AddCommand(queueCmd)
}
