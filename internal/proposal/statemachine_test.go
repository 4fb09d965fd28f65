package proposal_test

import (
	"errors"
	"testing"

	"procurement/internal/proposal"
	"procurement/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []models.ProposalStatus{
	models.StatusDraft, models.StatusSubmitted, models.StatusReceived, models.StatusUnderReview,
	models.StatusQualified, models.StatusDisqualified, models.StatusAwarded, models.StatusCancelled,
}

var allActions = []proposal.Action{
	proposal.ActionSubmit, proposal.ActionCancel, proposal.ActionReceive, proposal.ActionStartReview,
	proposal.ActionQualify, proposal.ActionDisqualify, proposal.ActionAward,
}

func TestNext_AllowedTransitions(t *testing.T) {
	allowed := map[models.ProposalStatus]map[proposal.Action]models.ProposalStatus{
		models.StatusDraft: {
			proposal.ActionSubmit: models.StatusSubmitted,
			proposal.ActionCancel: models.StatusCancelled,
		},
		models.StatusSubmitted: {
			proposal.ActionReceive:     models.StatusReceived,
			proposal.ActionStartReview: models.StatusUnderReview,
			proposal.ActionQualify:     models.StatusQualified,
			proposal.ActionDisqualify:  models.StatusDisqualified,
		},
		models.StatusReceived: {
			proposal.ActionStartReview: models.StatusUnderReview,
			proposal.ActionQualify:     models.StatusQualified,
			proposal.ActionDisqualify:  models.StatusDisqualified,
		},
		models.StatusUnderReview: {
			proposal.ActionQualify:    models.StatusQualified,
			proposal.ActionDisqualify: models.StatusDisqualified,
		},
		models.StatusQualified: {
			proposal.ActionDisqualify: models.StatusDisqualified,
			proposal.ActionAward:      models.StatusAwarded,
		},
	}

	for _, from := range allStatuses {
		for _, action := range allActions {
			want, ok := allowed[from][action]
			got, err := proposal.Next(from, action)
			if ok {
				require.NoError(t, err, "%s + %s", from, action)
				assert.Equal(t, want, got, "%s + %s", from, action)
				continue
			}
			require.Error(t, err, "%s + %s must be rejected", from, action)
			assert.True(t, errors.Is(err, proposal.ErrInvalidTransition))
			assert.Equal(t, from, got)
		}
	}
}

func TestNext_ErrorCarriesContext(t *testing.T) {
	_, err := proposal.Next(models.StatusSubmitted, proposal.ActionCancel)

	var e *proposal.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, models.StatusSubmitted, e.Status)
	assert.Equal(t, proposal.ActionCancel, e.Action)
	assert.Contains(t, e.Error(), "only draft proposals can be cancelled")
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, models.ProposalStatus("Archived").Valid())

	assert.True(t, models.StatusDisqualified.ExcludedFromRanking())
	assert.True(t, models.StatusCancelled.ExcludedFromRanking())
	assert.False(t, models.StatusAwarded.ExcludedFromRanking())

	assert.True(t, models.StatusSubmitted.Editable())
	assert.False(t, models.StatusAwarded.Editable())
}
