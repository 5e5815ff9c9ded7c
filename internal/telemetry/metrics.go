// Package telemetry holds the OpenTelemetry instruments of the ledger.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "bountyboard"

// Metrics records ledger activity. A nil *Metrics is a valid no-op.
type Metrics struct {
	BountiesCreated   metric.Int64Counter
	BountiesCompleted metric.Int64Counter
	BountiesCancelled metric.Int64Counter
	BountiesDisputed  metric.Int64Counter
	BountiesClaimed   metric.Int64Counter
	ReviewsCreated    metric.Int64Counter
	AgentsRegistered  metric.Int64Counter
	EscrowMoved       metric.Int64Counter
	EventsPublished   metric.Int64Counter
	CacheLookups      metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.Meter(meterName))
}

// NewMetricsFrom creates the instruments on meter.
func NewMetricsFrom(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.BountiesCreated, "ledger.bounties.created", "Bounties created"},
		{&m.BountiesClaimed, "ledger.bounties.claimed", "Bounties claimed"},
		{&m.BountiesCompleted, "ledger.bounties.completed", "Bounties approved and paid out"},
		{&m.BountiesCancelled, "ledger.bounties.cancelled", "Bounties cancelled and refunded"},
		{&m.BountiesDisputed, "ledger.bounties.disputed", "Bounties moved to dispute"},
		{&m.ReviewsCreated, "ledger.reviews.created", "Reviews settled into agent reputation"},
		{&m.AgentsRegistered, "ledger.agents.registered", "Agent records created"},
		{&m.EscrowMoved, "ledger.escrow.amount", "Minor units moved through escrow, by kind"},
		{&m.EventsPublished, "ledger.events.published", "Ledger events delivered to the broker"},
		{&m.CacheLookups, "ledger.cache.lookups", "Idempotency cache reads, by result"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (m *Metrics) BountyCreated(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.BountiesCreated, 1)
	}
}

func (m *Metrics) BountyClaimed(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.BountiesClaimed, 1)
	}
}

func (m *Metrics) BountyCompleted(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.BountiesCompleted, 1)
	}
}

func (m *Metrics) BountyCancelled(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.BountiesCancelled, 1)
	}
}

func (m *Metrics) BountyDisputed(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.BountiesDisputed, 1)
	}
}

func (m *Metrics) ReviewCreated(ctx context.Context, rating uint64) {
	if m != nil {
		m.add(ctx, m.ReviewsCreated, 1, attribute.Int64("rating", int64(rating)))
	}
}

func (m *Metrics) AgentRegistered(ctx context.Context) {
	if m != nil {
		m.add(ctx, m.AgentsRegistered, 1)
	}
}

// Escrow records amount moved by a transfer of kind. Amounts that do not
// fit an int64 are clamped.
func (m *Metrics) Escrow(ctx context.Context, kind string, amount uint64) {
	if m == nil {
		return
	}
	n := int64(amount)
	if n < 0 {
		n = 1<<63 - 1
	}
	m.add(ctx, m.EscrowMoved, n, attribute.String("kind", kind))
}

func (m *Metrics) EventPublished(ctx context.Context, kind string) {
	if m != nil {
		m.add(ctx, m.EventsPublished, 1, attribute.String("kind", kind))
	}
}

// CacheLookup records one cache read in namespace as a hit or a miss.
func (m *Metrics) CacheLookup(ctx context.Context, namespace string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.add(ctx, m.CacheLookups, 1, attribute.String("namespace", namespace), attribute.String("result", result))
}
