package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// Settler applies settlement to agent records. It accepts calls only from
// the single trusted caller it was built with, and runs inside the
// caller's transaction.
type Settler struct {
	trusted uuid.UUID
	now     func() time.Time
}

func NewSettler(trusted uuid.UUID) *Settler {
	return &Settler{trusted: trusted, now: time.Now}
}

// SettleReputation folds rating into the agent's rolling average and counts
// one more completed bounty. The average truncates.
func (s *Settler) SettleReputation(ctx context.Context, tx store.Tx, caller, agent uuid.UUID, rating uint64) error {
	if caller != s.trusted {
		return apperr.Unauthorized("caller %s is not the settlement authority", caller)
	}
	if rating == 0 || rating > models.MaxRating {
		return apperr.InvalidInput("rating must be in (0, %d]", models.MaxRating)
	}
	rec, err := s.lock(ctx, tx, agent)
	if err != nil {
		return err
	}
	n := rec.BountiesCompleted
	if n == math.MaxUint64 {
		return apperr.New(apperr.CodeOverflow, "bounties_completed overflows for agent %s", agent)
	}
	rec.Reputation = rollingAverage(rec.Reputation, n, rating)
	rec.BountiesCompleted = n + 1
	if err := tx.UpdateAgent(ctx, rec); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return tx.AppendEvent(ctx, models.NewEvent(models.EventAgentSettled, agent, caller, s.now().Unix(), map[string]string{
		"rating":             strconv.FormatUint(rating, 10),
		"reputation":         strconv.FormatUint(rec.Reputation, 10),
		"bounties_completed": strconv.FormatUint(rec.BountiesCompleted, 10),
	}))
}

// AddEarnings adds amount to the agent's lifetime earnings.
func (s *Settler) AddEarnings(ctx context.Context, tx store.Tx, caller, agent uuid.UUID, amount uint64) error {
	if caller != s.trusted {
		return apperr.Unauthorized("caller %s is not the settlement authority", caller)
	}
	rec, err := s.lock(ctx, tx, agent)
	if err != nil {
		return err
	}
	if rec.TotalEarned > math.MaxUint64-amount {
		return apperr.New(apperr.CodeOverflow, "total_earned overflows for agent %s", agent)
	}
	rec.TotalEarned += amount
	if err := tx.UpdateAgent(ctx, rec); err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	return nil
}

func (s *Settler) lock(ctx context.Context, tx store.Tx, agent uuid.UUID) (*models.AgentRecord, error) {
	rec, err := tx.GetAgentForUpdate(ctx, agent)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("agent %s not registered", agent)
	}
	if err != nil {
		return nil, fmt.Errorf("lock agent: %w", err)
	}
	return rec, nil
}

// rollingAverage returns floor((avg*n + x) / (n+1)), or x when n is zero.
// n+1 must not overflow.
func rollingAverage(avg, n, x uint64) uint64 {
	if n == 0 {
		return x
	}
	hi, lo := bits.Mul64(avg, n)
	var carry uint64
	lo, carry = bits.Add64(lo, x, 0)
	hi += carry
	q, _ := bits.Div64(hi, lo, n+1)
	return q
}
