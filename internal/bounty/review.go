package bounty

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// LeaveReview records the client's rating of a completed bounty and settles
// it into the agent's reputation. Each bounty takes one review.
func (s *service) LeaveReview(ctx context.Context, client, addr uuid.UUID, rating uint64, commentURI string) (*models.Review, error) {
	if rating == 0 || rating > models.MaxRating {
		return nil, apperr.InvalidInput("rating must be in (0, %d]", models.MaxRating)
	}
	if err := validateURI("comment_uri", commentURI); err != nil {
		return nil, err
	}

	var rv *models.Review
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := s.lockBounty(ctx, tx, addr)
		if err != nil {
			return err
		}
		if b.Client != client {
			return apperr.Unauthorized("caller %s is not the client of bounty %s", client, addr)
		}
		if b.Status != models.BountyCompleted || b.AssignedAgent == nil {
			return apperr.New(apperr.CodeNotCompleted, "bounty %s is %s", addr, b.Status)
		}
		rv = &models.Review{
			Address:    address.Review(addr),
			Bounty:     addr,
			Reviewer:   client,
			Agent:      *b.AssignedAgent,
			Rating:     rating,
			CommentURI: commentURI,
			CreatedAt:  s.now().Unix(),
		}
		if err := tx.InsertReview(ctx, rv); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return apperr.New(apperr.CodeAlreadyExists, "bounty %s already reviewed", addr)
			}
			return fmt.Errorf("insert review: %w", err)
		}
		if err := s.settle.SettleReputation(ctx, tx, ProgramID, address.Agent(rv.Agent), rating); err != nil {
			return err
		}
		return s.emit(ctx, tx, models.EventReviewCreated, rv.Address, client, map[string]string{
			"bounty": addr.String(),
			"agent":  rv.Agent.String(),
			"rating": strconv.FormatUint(rating, 10),
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ReviewCreated(ctx, rating)
	s.log.Info("review created", "bounty", addr, "agent", rv.Agent, "rating", rating)
	return rv, nil
}

func (s *service) GetReview(ctx context.Context, bounty uuid.UUID) (*models.Review, error) {
	rv, err := s.store.GetReview(ctx, address.Review(bounty))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("bounty %s has no review", bounty)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

// ListReviews returns reviews of the agent identity, newest first.
func (s *service) ListReviews(ctx context.Context, agent uuid.UUID, limit, offset int) ([]*models.Review, error) {
	list, err := s.store.ListReviewsByAgent(ctx, agent, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return list, nil
}
