package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/mdpredict/pkg/nbar"
	"github.com/orneryd/mdpredict/pkg/oracle"
)

func newNBarCmd(a *app) *cobra.Command {
	var datasetDir, degreesDir, output string
	cmd := &cobra.Command{
		Use:   "nbar",
		Short: "Compute the predictor size n̄ of every snapshot",
		Long: `Pair the sorted edge lists of --dataset with the sorted degree files of
--degrees, compute n̄ for each snapshot and write one value per line to
--output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sizer := nbar.NewSizer(a.cfg.Experiment.EdgeFraction, a.logger)
			values, err := sizer.ProcessFolders(datasetDir, degreesDir, output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ wrote %d n̄ values to %s\n", len(values), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&datasetDir, "dataset", "d", "", "Folder of snapshot edge lists")
	cmd.Flags().StringVar(&degreesDir, "degrees", "", "Folder of per-snapshot node degree files")
	cmd.Flags().StringVarP(&output, "output", "O", "", "Output file")
	for _, f := range []string{"dataset", "degrees", "output"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newTruncateCmd(a *app) *cobra.Command {
	var srcDir, nbarFile, prefix, outDir string
	cmd := &cobra.Command{
		Use:   "truncate",
		Short: "Cut per-snapshot degree files down to their first n̄ records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := oracle.Truncate(srcDir, nbarFile, prefix, outDir)
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&srcDir, "source", "", "Folder of all-pairs degree files")
	cmd.Flags().StringVarP(&nbarFile, "nbar", "b", "", "File with one n̄ value per snapshot")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Output file name prefix")
	cmd.Flags().StringVarP(&outDir, "output", "O", "", "Output folder")
	for _, f := range []string{"source", "nbar", "prefix", "output"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
