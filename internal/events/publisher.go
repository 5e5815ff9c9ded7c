// Package events fans committed ledger events out to subscribers. Events are
// written by the store inside the transaction that produced them, carried
// to a River worker through the same transaction, and published to a
// JetStream subject named after the event kind.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bountyboard/backend/internal/config"
	"github.com/bountyboard/backend/internal/models"
)

// Publisher delivers one event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
}

// LogPublisher writes events to the log. It stands in when no broker is
// configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, e models.Event) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "ledger event", "kind", e.Kind, "subject", e.Subject, "actor", e.Actor, "id", e.ID)
	return nil
}

// JetStreamPublisher publishes to "<prefix>.<kind>". The event id is the
// message id, so redelivered jobs are deduplicated by the stream.
type JetStreamPublisher struct {
	js     jetstream.JetStream
	prefix string
}

func NewJetStreamPublisher(js jetstream.JetStream, prefix string) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, prefix: prefix}
}

func (p *JetStreamPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *JetStreamPublisher) Publish(ctx context.Context, e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.Subject(e.Kind), data, jetstream.WithMsgID(e.ID.String())); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}

// Connect dials NATS and makes sure the ledger stream covers
// "<prefix>.>". The caller owns the returned connection.
func Connect(ctx context.Context, cfg config.NATS, log *slog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("bountyboard"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}
	log.Info("connected to nats", "url", nc.ConnectedUrl(), "stream", cfg.Stream)
	return nc, js, nil
}
