package service

import (
	"context"

	"appeals/internal/judgment/models"
	"appeals/pkg/requestcontext"
)

// rollbackReviewer undoes a reviewer assignment that only the deleted vote
// could have created. The member is removed from the active distribution
// when the vote was cast in the active distribution's session and no other
// session's distribution lists the member as reviewer. Reports whether the
// member was removed.
func (s *Service) rollbackReviewer(ctx context.Context, v *models.Vote) (bool, error) {
	if v.Role != models.VoteRoleReviewer {
		return false, nil
	}
	active, err := optional(s.store.FindActiveDistribution(ctx, v.CaseID))
	if err != nil {
		return false, wrapStoreErr(err, "distribution")
	}
	if active == nil || !active.HasReviewer(v.MemberID) || active.SessionID != v.SessionID {
		return false, nil
	}

	all, err := s.store.ListDistributionsByCase(ctx, v.CaseID)
	if err != nil {
		return false, wrapStoreErr(err, "distribution")
	}
	for _, d := range all {
		if d.ID == active.ID || d.SessionID == active.SessionID {
			continue
		}
		if d.HasReviewer(v.MemberID) {
			return false, nil
		}
	}

	active.RemoveReviewer(v.MemberID)
	active.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateDistribution(ctx, active); err != nil {
		return false, wrapStoreErr(err, "distribution")
	}
	if s.metrics != nil {
		s.metrics.IncrementReviewerRollback()
	}
	s.logger.InfoContext(ctx, "reviewer rolled back",
		"case_id", v.CaseID,
		"session_id", v.SessionID,
		"member_id", v.MemberID,
		"request_id", requestcontext.RequestID(ctx))
	return true, nil
}
