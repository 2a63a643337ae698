package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"racereg/internal/bibrepair"
)

var (
	// ErrIncomplete is returned when a repair pass left some bibs unrepaired.
	ErrIncomplete = errors.New("bib repair incomplete")
	// ErrInvalidBibs is returned by check when any invalid or duplicate bib was found.
	ErrInvalidBibs = errors.New("invalid bibs found")
)

var ValidFormats = []string{bibrepair.FormatText, bibrepair.FormatJSON}

type RootOptions struct {
	Format string
}

// Env is what a command needs to run against storage.
type Env struct {
	Repairer *bibrepair.Repairer
	Close    func()
}

// Setup connects to storage. ratePerSecond is the write pacing requested on the
// command line; zero means the configured default.
type Setup func(ctx context.Context, ratePerSecond float64) (*Env, error)

func NewRootCommand(setup Setup) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bib-repair",
		Short: "Find and fix invalid race bibs",
		Long: `Scans every assigned bib and replaces values that are malformed or outside
their category range with freshly allocated ones. Valid bibs are never changed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", bibrepair.FormatText, "output format (text|json)")

	cmd.AddCommand(NewRepairCommand(opts, setup))
	cmd.AddCommand(NewCheckCommand(opts, setup))

	return cmd
}
