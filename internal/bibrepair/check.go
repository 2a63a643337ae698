package bibrepair

import (
	"context"

	"racereg/pkg/bib"
	"racereg/pkg/model"
)

const (
	ProblemMalformed       = "malformed"
	ProblemOutOfRange      = "out of range"
	ProblemUnknownCategory = "unknown category"
	// ProblemDuplicate marks a valid bib held by more than one participant. Repair
	// leaves these alone; they have to be resolved by hand.
	ProblemDuplicate = "duplicate"
)

type Finding struct {
	ParticipantID string       `json:"participantId"`
	Category      bib.Category `json:"category"`
	Value         string       `json:"value"`
	Problem       string       `json:"problem"`
}

// Check lists every stored bib that is invalid or duplicated without writing anything.
func (r *Repairer) Check(ctx context.Context, category bib.Category) ([]Finding, error) {
	groups, err := r.load(ctx, category)
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	for _, c := range sortedCategories(groups) {
		findings = append(findings, r.checkCategory(c, groups[c])...)
	}
	return findings, nil
}

func (r *Repairer) checkCategory(category bib.Category, assignments []model.BibAssignment) []Finding {
	var findings []Finding
	rg, err := r.ranges.Lookup(category)
	if err != nil {
		for _, a := range assignments {
			findings = append(findings, finding(a, ProblemUnknownCategory))
		}
		return findings
	}

	for _, a := range invalidAssignments(r.ranges, category, assignments) {
		problem := ProblemOutOfRange
		if _, ok := bib.ParseValue(a.Bib); !ok {
			problem = ProblemMalformed
		}
		findings = append(findings, finding(a, problem))
	}

	holders := make(map[string][]model.BibAssignment)
	for _, a := range assignments {
		if v, ok := bib.ParseValue(a.Bib); ok && rg.Contains(v) {
			holders[a.Bib] = append(holders[a.Bib], a)
		}
	}
	var duplicates []Finding
	for _, hs := range holders {
		if len(hs) < 2 {
			continue
		}
		for _, a := range hs {
			duplicates = append(duplicates, finding(a, ProblemDuplicate))
		}
	}
	sortFindings(duplicates)
	return append(findings, duplicates...)
}

func finding(a model.BibAssignment, problem string) Finding {
	return Finding{ParticipantID: a.ParticipantID, Category: a.Category, Value: a.Bib, Problem: problem}
}
