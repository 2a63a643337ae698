package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"racereg/internal/bibrepair"
	"racereg/pkg/bib"
)

type repairOptions struct {
	category string
	dryRun   bool
	rate     float64
}

func NewRepairCommand(rootOpts *RootOptions, setup Setup) *cobra.Command {
	opts := &repairOptions{}

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Reassign invalid bibs",
		Long: `Reassigns every invalid bib, one participant at a time. Writes are paced by
a token bucket (--rate writes per second). Use --dry-run to print the plan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.rate < 0 {
				return fmt.Errorf("--rate must not be negative")
			}

			env, err := setup(cmd.Context(), opts.rate)
			if err != nil {
				return err
			}
			defer env.Close()

			report, runErr := env.Repairer.Run(cmd.Context(), bibrepair.Options{
				Category: bib.ParseCategory(opts.category),
				DryRun:   opts.dryRun,
			})
			if report != nil {
				if err := report.Write(cmd.OutOrStdout(), rootOpts.Format); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if report.Summary.Failed > 0 {
				return fmt.Errorf("%w: %d of %d failed", ErrIncomplete, report.Summary.Failed, report.Summary.Attempted)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "only repair this category")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the planned changes without writing")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "maximum writes per second (0 uses REPAIR_RATE_PER_SECOND)")

	return cmd
}
