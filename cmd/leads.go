package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrichForce bool

var xrefCmd = &cobra.Command{
	Use:   "xref",
	Short: "Cross-reference every owner against the CRM customer set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		st, err := a.Matcher.Run(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("cross-reference complete",
			zap.String("job_id", st.JobID),
			zap.Int("total_owners", st.TotalOwners),
			zap.Int("linked", st.Linked),
			zap.Float64("link_percentage", st.LinkPercentage),
			zap.Int("new_links", st.NewLinks),
			zap.Int("auto_converted", st.AutoConverted),
		)
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich [owner-id...]",
	Short: "Fetch contact data for owners",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil || id <= 0 {
				return eris.Errorf("invalid owner id %q", a)
			}
			ids = append(ids, id)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		res, err := a.Enricher.EnrichBatch(ctx, ids, enrichForce)
		if err != nil {
			return err
		}
		zap.L().Info("enrichment complete",
			zap.String("job_id", res.JobID),
			zap.Int("enriched", res.Stats.Enriched),
			zap.Int("failed", res.Stats.Failed),
			zap.Int("skipped", res.Stats.Skipped),
		)
		return nil
	},
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute the cached priority of every owner",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		n, err := a.Lifecycle.RefreshAll(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("rescore complete", zap.Int("owners", n))
		return nil
	},
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "re-fetch owners with fresh contact data")
	rootCmd.AddCommand(xrefCmd, enrichCmd, rescoreCmd)
}
