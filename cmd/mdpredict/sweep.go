package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/mdpredict/pkg/orchestrator"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [sweep.yaml]",
		Short: "Launch one worker process per (dataset, c) of a sweep file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sweep, err := orchestrator.LoadSweep(args[0])
			if err != nil {
				return err
			}
			if a.configPath != "" {
				sweep.ExtraArgs = append(sweep.ExtraArgs, "--config", a.configPath)
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}

			o := orchestrator.New(orchestrator.Options{
				Binary: self,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
				Logger: a.logger,
			})
			statuses, err := o.Run(cmd.Context(), sweep)
			orchestrator.Report(cmd.OutOrStdout(), statuses)
			return err
		},
	}
}
