package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"racereg/internal/bibrepair"
	"racereg/pkg/bib"
)

func NewCheckCommand(rootOpts *RootOptions, setup Setup) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "List invalid and duplicated bibs without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), 0)
			if err != nil {
				return err
			}
			defer env.Close()

			findings, err := env.Repairer.Check(cmd.Context(), bib.ParseCategory(category))
			if err != nil {
				return err
			}
			if err := bibrepair.WriteFindings(cmd.OutOrStdout(), findings, rootOpts.Format); err != nil {
				return err
			}
			if len(findings) > 0 {
				return fmt.Errorf("%w: %d", ErrInvalidBibs, len(findings))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "only check this category")

	return cmd
}
