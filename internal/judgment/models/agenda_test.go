package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

func TestAgendaEntryTransitions(t *testing.T) {
	now := time.Now()
	newEntry := func() *AgendaEntry {
		return NewAgendaEntry(id.CaseID(uuid.New()), id.SessionID(uuid.New()), 1, false, now)
	}

	t.Run("inquiry carries deadline and clears requester", func(t *testing.T) {
		e := newEntry()
		review := StatusTransition{Target: AgendaStatusUnderReviewRequest, ReviewRequester: id.MemberID(uuid.New())}
		require.NoError(t, e.CanTransition(review, false))
		e.ApplyTransition(review, now)
		require.NotNil(t, e.ReviewRequester)

		inquiry := StatusTransition{Target: AgendaStatusUnderInquiry, InquiryDeadlineDays: 30}
		require.NoError(t, e.CanTransition(inquiry, false))
		e.ApplyTransition(inquiry, now)
		assert.Equal(t, AgendaStatusUnderInquiry, e.Status)
		assert.Nil(t, e.ReviewRequester)
		require.NotNil(t, e.InquiryDeadlineDays)
		assert.Equal(t, 30, *e.InquiryDeadlineDays)

		suspended := StatusTransition{Target: AgendaStatusSuspended}
		require.NoError(t, e.CanTransition(suspended, false))
		e.ApplyTransition(suspended, now)
		assert.Nil(t, e.InquiryDeadlineDays)
		assert.Nil(t, e.ReviewRequester)
	})

	t.Run("transition data is validated", func(t *testing.T) {
		e := newEntry()
		err := e.CanTransition(StatusTransition{Target: AgendaStatusUnderInquiry}, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		err = e.CanTransition(StatusTransition{Target: AgendaStatusUnderReviewRequest}, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		err = e.CanTransition(StatusTransition{Target: "archived"}, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("decided requires resolved merit", func(t *testing.T) {
		e := newEntry()
		decided := StatusTransition{Target: AgendaStatusDecided}
		err := e.CanTransition(decided, false)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		require.NoError(t, e.CanTransition(decided, true))
	})

	t.Run("decided is terminal", func(t *testing.T) {
		e := newEntry()
		e.ApplyTransition(StatusTransition{Target: AgendaStatusDecided}, now)
		for _, target := range []AgendaStatus{AgendaStatusOnAgenda, AgendaStatusSuspended, AgendaStatusDecided} {
			err := e.CanTransition(StatusTransition{Target: target}, true)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict), target)
		}
	})
}
