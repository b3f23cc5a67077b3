package lifecycle

import (
	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

// stage orders statuses along the funnel. Both terminal states share the
// last stage.
func stage(s model.LeadStatus) int {
	switch s {
	case model.LeadStatusNew:
		return 0
	case model.LeadStatusContacted:
		return 1
	case model.LeadStatusNegotiating:
		return 2
	default:
		return 3
	}
}

// CanTransition reports whether a lead may move from one status to another.
// Moves go forward only; skipping stages is allowed; terminal states are
// frozen, so a converted or lost lead is never reopened.
func CanTransition(from, to model.LeadStatus) error {
	if !to.Valid() {
		return apperr.Validation("unknown lead status %q", to)
	}
	if from.Terminal() || stage(to) <= stage(from) {
		return apperr.InvalidTransition(string(from), string(to))
	}
	return nil
}
