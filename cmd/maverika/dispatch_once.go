package main

import (
	"github.com/spf13/cobra"
)

func newDispatchOnceCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch-once",
		Short: "Run a single dispatcher scan and wait for the picked tasks to finish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			picked, err := a.dispatcher.Tick(cmd.Context())
			if err != nil {
				return err
			}
			a.dispatcher.Wait()
			logger.Info().Int("picked", picked).Msg("dispatch pass finished")
			return nil
		},
	}
}
