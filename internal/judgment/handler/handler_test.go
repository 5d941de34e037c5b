package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"appeals/internal/judgment/models"
	"appeals/internal/judgment/service"
	"appeals/internal/judgment/store"
	id "appeals/pkg/domain"
	"appeals/pkg/testutil"
)

// HandlerSuite drives the HTTP surface against the real engine on the
// in-memory store.
type HandlerSuite struct {
	suite.Suite
	store     *store.InMemory
	router    http.Handler
	anonymous http.Handler
	now       time.Time
	caseID    id.CaseID
	sessionID id.SessionID
	clerk     id.MemberID
	alice     id.MemberID
	bruno     id.MemberID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	svc := service.New(s.store, s.store, s.store, s.store)
	h := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	s.clerk = id.MemberID(uuid.New())
	s.alice = id.MemberID(uuid.New())
	s.bruno = id.MemberID(uuid.New())
	s.caseID = id.CaseID(uuid.New())
	s.sessionID = id.SessionID(uuid.New())

	s.Require().NoError(s.store.SaveCase(ctx, &models.Case{ID: s.caseID, Number: "10880.720001", Stage: models.CaseStageInProgress}))
	s.Require().NoError(s.store.SaveSession(ctx, &models.Session{
		ID:     s.sessionID,
		Date:   s.now.AddDate(0, 0, 7),
		Kind:   "ordinary",
		Status: models.SessionStatusNeedsPublication,
	}))
	s.Require().NoError(s.store.SaveRoster(ctx, s.sessionID, []models.Member{
		{ID: s.alice, Name: "Alice Moura", Role: models.MemberRoleCounselor, Eligible: true},
		{ID: s.bruno, Name: "Bruno Lima", Role: models.MemberRoleCounselor, Eligible: true},
	}))

	authenticated := chi.NewRouter()
	authenticated.Use(testutil.AsMember(s.clerk, s.now))
	h.Register(authenticated)
	s.router = authenticated

	anonymous := chi.NewRouter()
	h.Register(anonymous)
	s.anonymous = anonymous
}

func (s *HandlerSuite) path(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func (s *HandlerSuite) addCase() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/sessions/%s/agenda", s.sessionID),
		map[string]string{"case_id": s.caseID.String(), "assignee": s.alice.String()})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
}

func (s *HandlerSuite) castMerit(member id.MemberID, role string) map[string]any {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/votes", map[string]string{
		"case_id":        s.caseID.String(),
		"session_id":     s.sessionID.String(),
		"member_id":      member.String(),
		"role":           role,
		"participation":  "present",
		"knowledge":      "admitted",
		"merit_decision": "upheld",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[map[string]any](s.T(), rr)
}

func (s *HandlerSuite) TestAddCase() {
	s.Run("creates the entry and the rapporteur distribution", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/sessions/%s/agenda", s.sessionID),
			map[string]string{"case_id": s.caseID.String(), "assignee": s.alice.String()})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		item := testutil.UnmarshalResponse[models.AgendaItem](s.T(), rr)
		s.Equal(models.AgendaStatusOnAgenda, item.Entry.Status)
		s.Require().NotNil(item.Distribution)
		s.Equal(s.alice, item.Distribution.Rapporteur)
	})

	s.Run("a second add of the same case is a conflict", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/sessions/%s/agenda", s.sessionID),
			map[string]string{"case_id": s.caseID.String(), "assignee": s.bruno.String()})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("malformed session id", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/sessions/not-a-uuid/agenda",
			map[string]string{"case_id": s.caseID.String(), "assignee": s.alice.String()})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("unknown body field", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, s.path("/sessions/%s/agenda", s.sessionID),
			`{"case_id":"`+s.caseID.String()+`","assignee":"`+s.alice.String()+`","priority":1}`)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestRequiresMember() {
	req := testutil.NewRequest(s.T(), http.MethodGet, s.path("/sessions/%s/agenda", s.sessionID))
	rr := testutil.DoRequest(s.anonymous, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestPublicationMakesAgendaCurrent() {
	s.addCase()

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, s.path("/sessions/%s/agenda/current", s.sessionID)))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "current", false)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, s.path("/sessions/%s/publications", s.sessionID)))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	pub := testutil.UnmarshalResponse[PublicationResponse](s.T(), rr)
	s.Require().Len(pub.Entries, 1)
	s.Equal(s.alice, pub.Entries[0].Distributee)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, s.path("/sessions/%s/agenda/current", s.sessionID)))
	testutil.AssertJSONContains(s.T(), rr, "current", true)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, s.path("/sessions/%s/agenda", s.sessionID)))
	testutil.AssertStatusOK(s.T(), rr)
	agenda := testutil.UnmarshalResponse[models.SessionAgenda](s.T(), rr)
	s.Equal(models.SessionStatusPending, agenda.Session.Status)
	s.Len(agenda.Items, 1)
}

func (s *HandlerSuite) TestVoteResolveAndHistory() {
	s.addCase()
	vote := s.castMerit(s.alice, "rapporteur")
	batchID, ok := vote["batch_id"].(string)
	s.Require().True(ok, "vote response carries its voting result")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.path("/batches/%s/resolution", batchID),
		map[string]string{"winner": s.alice.String()})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "resolved")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, s.path("/cases/%s/history", s.caseID)))
	testutil.AssertStatusOK(s.T(), rr)
	history := testutil.UnmarshalResponse[models.CaseHistory](s.T(), rr)
	s.Len(history.Votes, 1)
	s.Len(history.Batches, 1)
	s.Require().Len(history.Entries, 1)
	s.Equal(models.AgendaStatusDecided, history.Entries[0].Status)

	s.Run("a decided case rejects further votes", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/votes", map[string]string{
			"case_id":        s.caseID.String(),
			"session_id":     s.sessionID.String(),
			"member_id":      s.bruno.String(),
			"role":           "voting_member",
			"participation":  "present",
			"knowledge":      "admitted",
			"merit_decision": "upheld",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})
}

func (s *HandlerSuite) TestCastVoteValidation() {
	s.addCase()

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/votes", map[string]string{
		"case_id":       s.caseID.String(),
		"session_id":    s.sessionID.String(),
		"member_id":     s.alice.String(),
		"role":          "judge",
		"participation": "present",
		"knowledge":     "admitted",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestDeleteVoteAndGrouping() {
	s.addCase()
	vote := s.castMerit(s.alice, "rapporteur")

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, s.path("/votes/%s", vote["id"])))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, s.path("/cases/%s/grouping", s.caseID)))
	testutil.AssertStatusOK(s.T(), rr)
	batches := testutil.UnmarshalResponse[BatchesResponse](s.T(), rr)
	s.Empty(batches.Batches)

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, s.path("/votes/%s", vote["id"])))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestChangeStatus() {
	s.addCase()

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/sessions/%s/agenda/%s/status", s.sessionID, s.caseID),
		map[string]any{"status": "under_inquiry", "inquiry_deadline_days": 30})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "inquiry_deadline_days", float64(30))

	s.Run("decided without a resolved merit result", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/sessions/%s/agenda/%s/status", s.sessionID, s.caseID),
			map[string]string{"status": "decided"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")
	})

	s.Run("inquiry without a deadline", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/sessions/%s/agenda/%s/status", s.sessionID, s.caseID),
			map[string]string{"status": "under_inquiry"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *HandlerSuite) TestRedistributeAndRemove() {
	s.addCase()

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/sessions/%s/agenda/%s/distribution", s.sessionID, s.caseID),
		map[string]string{"assignee": s.bruno.String()})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	dist := testutil.UnmarshalResponse[models.Distribution](s.T(), rr)
	s.Equal(s.alice, dist.Rapporteur)
	s.Equal(s.bruno, dist.Distributee)

	req = testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/sessions/%s/agenda/order", s.sessionID),
		map[string][]string{"case_ids": {s.caseID.String()}})
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONHasKey(s.T(), rr, "entries")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodDelete, s.path("/sessions/%s/agenda/%s", s.sessionID, s.caseID)))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	req = testutil.NewJSONRequest(s.T(), http.MethodPut, s.path("/sessions/%s/agenda/order", s.sessionID),
		map[string][]string{"case_ids": {s.caseID.String()}})
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}
