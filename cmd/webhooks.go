package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var webhooksEventType string

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "List webhook subscribers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		hooks, err := a.Webhooks.List(ctx, webhooksEventType)
		if err != nil {
			return err
		}
		if len(hooks) == 0 {
			zap.L().Info("no webhook subscribers")
			return nil
		}
		formatWebhooks(os.Stdout, hooks)
		return nil
	},
}

func init() {
	webhooksCmd.Flags().StringVar(&webhooksEventType, "event-type", "", "only subscribers of this event type")
	rootCmd.AddCommand(webhooksCmd)
}
