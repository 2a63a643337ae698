package bibrepair

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/time/rate"

	participantserrors "racereg/internal/participants/errors"
	"racereg/pkg/bib"
	"racereg/pkg/logger"
	"racereg/pkg/model"
)

const (
	ReasonRangeExhausted  = "range exhausted"
	ReasonInvalidCategory = "invalid category"
	ReasonConflict        = "bib already taken"
	ReasonStale           = "participant modified concurrently"
)

// Store is the slice of the participant repository the repair pass needs.
type Store interface {
	ListAssignments(ctx context.Context, category bib.Category) ([]model.BibAssignment, error)
	ReplaceBib(ctx context.Context, id string, category bib.Category, expectedBib, newBib string) error
}

type Publisher interface {
	BibRepaired(ctx context.Context, event model.BibRepairedEvent) error
}

type Options struct {
	// Category limits the pass to one category; empty means all of them.
	Category bib.Category
	DryRun   bool
}

type Repairer struct {
	store     Store
	ranges    bib.Ranges
	limiter   *rate.Limiter
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
}

// NewRepairer paces writes with limiter; a nil limiter writes without pacing.
func NewRepairer(store Store, ranges bib.Ranges, limiter *rate.Limiter, publisher Publisher, log *logger.Logger) *Repairer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Repairer{
		store:     store,
		ranges:    ranges,
		limiter:   limiter,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewLimiter builds a token bucket allowing perSecond writes with a burst of one.
// A non-positive rate disables pacing.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Run replaces every invalid bib with a freshly allocated one. Valid bibs are
// never touched. Each participant is written separately, so a cancelled run
// keeps the repairs made so far; the partial report is returned with the error.
func (r *Repairer) Run(ctx context.Context, opts Options) (*Report, error) {
	groups, err := r.load(ctx, opts.Category)
	if err != nil {
		return nil, err
	}

	report := &Report{DryRun: opts.DryRun, Repaired: []Repaired{}, Failed: []Failed{}}
	for _, category := range sortedCategories(groups) {
		if err := r.repairCategory(ctx, category, groups[category], opts.DryRun, report); err != nil {
			report.finish()
			return report, err
		}
	}

	report.finish()
	r.log.Info("Bib repair finished",
		"dry_run", opts.DryRun,
		"attempted", report.Summary.Attempted,
		"succeeded", report.Summary.Succeeded,
		"failed", report.Summary.Failed,
	)
	return report, nil
}

func (r *Repairer) repairCategory(ctx context.Context, category bib.Category, assignments []model.BibAssignment, dryRun bool, report *Report) error {
	if !r.ranges.Has(category) {
		for _, a := range assignments {
			report.fail(a, ReasonInvalidCategory)
		}
		r.log.Warn("Skipping participants with unconfigured category", "category", category, "count", len(assignments))
		return nil
	}

	raw := make([]string, len(assignments))
	for i, a := range assignments {
		raw[i] = a.Bib
	}
	valid, _, err := r.ranges.Snapshot(category, raw)
	if err != nil {
		return err
	}

	invalid := invalidAssignments(r.ranges, category, assignments)
	if len(invalid) == 0 {
		return nil
	}
	r.log.Info("Repairing category", "category", category, "invalid", len(invalid), "valid", len(valid))

	for i, a := range invalid {
		identifier, err := r.ranges.Allocate(category, valid)
		if err != nil {
			if errors.Is(err, bib.ErrRangeExhausted) {
				for _, rest := range invalid[i:] {
					report.fail(rest, ReasonRangeExhausted)
				}
				r.log.Error("Bib range exhausted during repair", "category", category, "remaining", len(invalid)-i)
				return nil
			}
			return err
		}
		valid.Add(identifier.Value)
		newBib := identifier.String()

		if dryRun {
			report.repair(a, newBib)
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("repair interrupted: %w", err)
		}

		if err := r.store.ReplaceBib(ctx, a.ParticipantID, category, a.Bib, newBib); err != nil {
			reason := failureReason(err)
			report.fail(a, reason)
			r.log.Warn("Failed to repair bib",
				"participant_id", a.ParticipantID,
				"category", category,
				"old_bib", a.Bib,
				"new_bib", newBib,
				"error", err,
			)
			continue
		}

		report.repair(a, newBib)
		r.log.Info("Bib repaired",
			"participant_id", a.ParticipantID,
			"category", category,
			"old_bib", a.Bib,
			"new_bib", newBib,
		)
		r.publish(ctx, a, newBib)
	}
	return nil
}

func (r *Repairer) publish(ctx context.Context, a model.BibAssignment, newBib string) {
	if r.publisher == nil {
		return
	}
	event := model.BibRepairedEvent{
		ParticipantID: a.ParticipantID,
		Category:      a.Category,
		OldBib:        a.Bib,
		NewBib:        newBib,
		RepairedAt:    r.now(),
	}
	if err := r.publisher.BibRepaired(ctx, event); err != nil {
		r.log.Error("Failed to publish bib repaired event", "participant_id", a.ParticipantID, "error", err)
	}
}

func (r *Repairer) load(ctx context.Context, category bib.Category) (map[bib.Category][]model.BibAssignment, error) {
	if category != "" {
		if _, err := r.ranges.Lookup(category); err != nil {
			return nil, err
		}
	}

	assignments, err := r.store.ListAssignments(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to load bib assignments: %w", err)
	}

	groups := make(map[bib.Category][]model.BibAssignment)
	for _, a := range assignments {
		if a.Bib == "" {
			continue
		}
		groups[a.Category] = append(groups[a.Category], a)
	}
	return groups, nil
}

// invalidAssignments returns the entries failing IsValid, numeric values first in
// ascending order, then the rest oldest first. Participant ID breaks ties.
func invalidAssignments(ranges bib.Ranges, category bib.Category, assignments []model.BibAssignment) []model.BibAssignment {
	var invalid []model.BibAssignment
	for _, a := range assignments {
		if !ranges.IsValid(a.Bib, category) {
			invalid = append(invalid, a)
		}
	}

	slices.SortStableFunc(invalid, func(x, y model.BibAssignment) int {
		xv, xok := bib.ParseValue(x.Bib)
		yv, yok := bib.ParseValue(y.Bib)
		switch {
		case xok && !yok:
			return -1
		case !xok && yok:
			return 1
		case xok && yok && xv != yv:
			return cmp.Compare(xv, yv)
		case !xok && !yok && !x.CreatedAt.Equal(y.CreatedAt):
			return x.CreatedAt.Compare(y.CreatedAt)
		}
		return cmp.Compare(x.ParticipantID, y.ParticipantID)
	})
	return invalid
}

func sortedCategories(groups map[bib.Category][]model.BibAssignment) []bib.Category {
	out := make([]bib.Category, 0, len(groups))
	for c := range groups {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, participantserrors.ErrBibConflict):
		return ReasonConflict
	case errors.Is(err, participantserrors.ErrStaleAssignment):
		return ReasonStale
	default:
		return err.Error()
	}
}
