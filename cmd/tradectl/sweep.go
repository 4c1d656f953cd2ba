package main

import (
	"encoding/json"

	"github.com/ariefcatur/go-inventory-trades/internal/config"
	"github.com/ariefcatur/go-inventory-trades/internal/logging"
	"github.com/ariefcatur/go-inventory-trades/internal/sweep"
	"github.com/spf13/cobra"
)

func sweepCmd(cfg config.Config, open opener, effects sideEffects) *cobra.Command {
	var threshold string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one auto-deliver pass over stale orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, release, err := open(ctx)
			if err != nil {
				return err
			}
			defer release()

			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			cache, events, done := effects(ctx)
			defer done()

			s := &sweep.Sweeper{
				Orders:    store.Orders(),
				Cache:     cache,
				Events:    events,
				Log:       log,
				Threshold: cfg.SweepThreshold,
			}
			if threshold != "" {
				if s.Threshold, err = parseDuration(threshold); err != nil {
					return err
				}
			}

			res, err := s.RunOnce(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&threshold, "threshold", "", "age after which orders are delivered (e.g. 72h)")
	return cmd
}
