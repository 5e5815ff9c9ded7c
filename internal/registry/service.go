// Package registry is the agent record store: agent profiles, the owner
// update path and the settlement path the bounty ledger uses to credit
// reputation and earnings.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/backend/internal/address"
	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
	"github.com/bountyboard/backend/internal/telemetry"
)

// UpdateParams carries the fields an owner may change. Nil fields are left
// untouched.
type UpdateParams struct {
	MetadataURI  *string
	HourlyRate   *uint64
	Availability *models.Availability
}

type Service interface {
	Register(ctx context.Context, owner uuid.UUID, metadataURI string, hourlyRate uint64) (*models.AgentRecord, error)
	Update(ctx context.Context, caller, agent uuid.UUID, p UpdateParams) (*models.AgentRecord, error)
	Get(ctx context.Context, owner uuid.UUID) (*models.AgentRecord, error)
	List(ctx context.Context, f store.AgentFilter) ([]*models.AgentRecord, error)
}

type Option func(*service)

func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *service) { s.log = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(s *service) { s.metrics = m } }

type service struct {
	store   store.Store
	now     func() time.Time
	log     *slog.Logger
	metrics *telemetry.Metrics
}

func NewService(st store.Store, opts ...Option) *service {
	s := &service{store: st, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, owner uuid.UUID, metadataURI string, hourlyRate uint64) (*models.AgentRecord, error) {
	if err := validateURI("metadata_uri", metadataURI); err != nil {
		return nil, err
	}
	if hourlyRate == 0 {
		return nil, apperr.InvalidInput("hourly_rate must be > 0")
	}
	rec := &models.AgentRecord{
		Address:      address.Agent(owner),
		Owner:        owner,
		MetadataURI:  metadataURI,
		HourlyRate:   hourlyRate,
		Availability: models.AvailabilityAvailable,
		CreatedAt:    s.now().Unix(),
	}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertAgent(ctx, rec); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return apperr.New(apperr.CodeAlreadyExists, "agent %s already registered", rec.Address)
			}
			return fmt.Errorf("insert agent: %w", err)
		}
		return tx.AppendEvent(ctx, models.NewEvent(models.EventAgentRegistered, rec.Address, owner, rec.CreatedAt, map[string]string{
			"hourly_rate": strconv.FormatUint(hourlyRate, 10),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AgentRegistered(ctx)
	s.log.Info("agent registered", "agent", rec.Address, "owner", owner)
	return rec, nil
}

// Update applies p to the record at agent. Every present field is checked
// before anything is written.
func (s *service) Update(ctx context.Context, caller, agent uuid.UUID, p UpdateParams) (*models.AgentRecord, error) {
	if p.MetadataURI != nil {
		if err := validateURI("metadata_uri", *p.MetadataURI); err != nil {
			return nil, err
		}
	}
	if p.HourlyRate != nil && *p.HourlyRate == 0 {
		return nil, apperr.InvalidInput("hourly_rate must be > 0")
	}
	if p.Availability != nil && !p.Availability.Valid() {
		return nil, apperr.InvalidInput("unknown availability %d", *p.Availability)
	}

	var rec *models.AgentRecord
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.GetAgentForUpdate(ctx, agent)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("agent %s not registered", agent)
		}
		if err != nil {
			return fmt.Errorf("lock agent: %w", err)
		}
		if rec.Owner != caller {
			return apperr.Unauthorized("caller %s does not own agent %s", caller, agent)
		}
		attrs := map[string]string{}
		if p.MetadataURI != nil {
			rec.MetadataURI = *p.MetadataURI
			attrs["metadata_uri"] = rec.MetadataURI
		}
		if p.HourlyRate != nil {
			rec.HourlyRate = *p.HourlyRate
			attrs["hourly_rate"] = strconv.FormatUint(rec.HourlyRate, 10)
		}
		if p.Availability != nil {
			rec.Availability = *p.Availability
			attrs["availability"] = rec.Availability.String()
		}
		if err := tx.UpdateAgent(ctx, rec); err != nil {
			return fmt.Errorf("update agent: %w", err)
		}
		return tx.AppendEvent(ctx, models.NewEvent(models.EventAgentUpdated, agent, caller, s.now().Unix(), attrs))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) Get(ctx context.Context, owner uuid.UUID) (*models.AgentRecord, error) {
	rec, err := s.store.GetAgent(ctx, address.Agent(owner))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("no agent registered for %s", owner)
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return rec, nil
}

func (s *service) List(ctx context.Context, f store.AgentFilter) ([]*models.AgentRecord, error) {
	list, err := s.store.ListAgents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return list, nil
}

func validateURI(field, uri string) error {
	if len(uri) > models.MaxURILen {
		return apperr.InvalidInput("%s exceeds %d bytes", field, models.MaxURILen)
	}
	return nil
}
