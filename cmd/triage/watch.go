package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Triage/internal/hermes"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print triage events from NATS as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Hermes.URL == "" {
				return errors.New("hermes.url is not configured")
			}

			hc, err := hermes.NewNATSClient(cmd.Context(), cfg.Hermes.URL, logger)
			if err != nil {
				return err
			}
			defer hc.Close()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			err = hc.Subscribe(subject, func(subj string, data []byte) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "%s %s\n", subj, data)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			logger.Info("watching events", "subject", subject)

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "triage.>", "NATS subject to follow")
	return cmd
}
