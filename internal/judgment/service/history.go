package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
)

// CaseHistory returns every agenda entry, distribution, vote and voting
// result of a case across sessions.
func (s *Service) CaseHistory(ctx context.Context, caseID id.CaseID) (*models.CaseHistory, error) {
	if _, err := s.store.FindCase(ctx, caseID); err != nil {
		return nil, wrapStoreErr(err, "case")
	}

	history := &models.CaseHistory{CaseID: caseID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.store.ListEntriesByCase(gctx, caseID)
		history.Entries = entries
		return wrapStoreErr(err, "agenda entry")
	})
	g.Go(func() error {
		dists, err := s.store.ListDistributionsByCase(gctx, caseID)
		history.Distributions = dists
		return wrapStoreErr(err, "distribution")
	})
	g.Go(func() error {
		votes, err := s.store.ListVotesByCase(gctx, caseID)
		history.Votes = votes
		return wrapStoreErr(err, "vote")
	})
	g.Go(func() error {
		batches, err := s.store.ListBatchesByCase(gctx, caseID)
		history.Batches = batches
		return wrapStoreErr(err, "voting result")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return history, nil
}
