package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-intel/internal/apperr"
	"github.com/sells-group/lead-intel/internal/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.LeadStatus
		ok       bool
	}{
		{model.LeadStatusNew, model.LeadStatusContacted, true},
		{model.LeadStatusNew, model.LeadStatusNegotiating, true},
		{model.LeadStatusNew, model.LeadStatusConverted, true},
		{model.LeadStatusNew, model.LeadStatusLost, true},
		{model.LeadStatusContacted, model.LeadStatusNegotiating, true},
		{model.LeadStatusNegotiating, model.LeadStatusLost, true},
		{model.LeadStatusNew, model.LeadStatusNew, false},
		{model.LeadStatusNegotiating, model.LeadStatusContacted, false},
		{model.LeadStatusConverted, model.LeadStatusNew, false},
		{model.LeadStatusConverted, model.LeadStatusLost, false},
		{model.LeadStatusLost, model.LeadStatusContacted, false},
		{model.LeadStatusLost, model.LeadStatusConverted, false},
	}
	for _, tt := range tests {
		err := CanTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			continue
		}
		assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition), "%s -> %s", tt.from, tt.to)
	}

	err := CanTransition(model.LeadStatusNew, "archived")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
