package bibrepair

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"racereg/pkg/bib"
	"racereg/pkg/model"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type Repaired struct {
	ParticipantID string       `json:"participantId"`
	Category      bib.Category `json:"category"`
	OldValue      string       `json:"oldValue"`
	NewValue      string       `json:"newValue"`
}

type Failed struct {
	ParticipantID string       `json:"participantId"`
	Category      bib.Category `json:"category"`
	OldValue      string       `json:"oldValue"`
	Reason        string       `json:"reason"`
}

type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Report is the audit trail of one repair pass. In a dry run Repaired holds the
// planned mapping and nothing was written.
type Report struct {
	DryRun   bool       `json:"dryRun"`
	Repaired []Repaired `json:"repaired"`
	Failed   []Failed   `json:"failed"`
	Summary  Summary    `json:"summary"`
}

func (r *Report) repair(a model.BibAssignment, newBib string) {
	r.Repaired = append(r.Repaired, Repaired{
		ParticipantID: a.ParticipantID,
		Category:      a.Category,
		OldValue:      a.Bib,
		NewValue:      newBib,
	})
}

func (r *Report) fail(a model.BibAssignment, reason string) {
	r.Failed = append(r.Failed, Failed{
		ParticipantID: a.ParticipantID,
		Category:      a.Category,
		OldValue:      a.Bib,
		Reason:        reason,
	})
}

func (r *Report) finish() {
	r.Summary = Summary{
		Attempted: len(r.Repaired) + len(r.Failed),
		Succeeded: len(r.Repaired),
		Failed:    len(r.Failed),
	}
}

// Mapping returns old to new bib per participant ID.
func (r *Report) Mapping() map[string][2]string {
	out := make(map[string][2]string, len(r.Repaired))
	for _, rp := range r.Repaired {
		out[rp.ParticipantID] = [2]string{rp.OldValue, rp.NewValue}
	}
	return out
}

func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatText, "":
		return r.writeText(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	title := "Bib repair report"
	if r.DryRun {
		title += " (dry run, nothing written)"
	}
	fmt.Fprintln(tw, title)
	fmt.Fprintf(tw, "attempted: %d\tsucceeded: %d\tfailed: %d\n", r.Summary.Attempted, r.Summary.Succeeded, r.Summary.Failed)

	if len(r.Repaired) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "PARTICIPANT\tCATEGORY\tOLD\tNEW")
		for _, rp := range r.Repaired {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rp.ParticipantID, rp.Category, quote(rp.OldValue), rp.NewValue)
		}
	}

	if len(r.Failed) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "PARTICIPANT\tCATEGORY\tOLD\tREASON")
		for _, f := range r.Failed {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ParticipantID, f.Category, quote(f.OldValue), f.Reason)
		}
	}

	return tw.Flush()
}

func WriteFindings(w io.Writer, findings []Finding, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	case FormatText, "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if len(findings) == 0 {
			fmt.Fprintln(tw, "All bibs are valid.")
			return tw.Flush()
		}
		fmt.Fprintln(tw, "PARTICIPANT\tCATEGORY\tVALUE\tPROBLEM")
		for _, f := range findings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ParticipantID, f.Category, quote(f.Value), f.Problem)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// quote makes blank and padded values visible in text output.
func quote(v string) string {
	if _, ok := bib.ParseValue(v); ok {
		return v
	}
	return fmt.Sprintf("%q", v)
}

func sortFindings(findings []Finding) {
	slices.SortFunc(findings, func(a, b Finding) int {
		if c := cmp.Compare(a.Value, b.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
}
