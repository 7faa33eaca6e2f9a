// Package notify publishes listing refresh signals so downstream readers
// can reload after an ingestion.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/listings/internal/core"
)

// Message is the JSON body of a refresh signal.
type Message struct {
	Path       core.IngestPath `json:"path"`
	Count      int             `json:"count"`
	ListingIDs []uuid.UUID     `json:"listing_ids"`
	At         time.Time       `json:"at"`
}

func newMessage(event core.RefreshEvent) Message {
	ids := event.ListingIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return Message{
		Path:       event.Path,
		Count:      event.Count,
		ListingIDs: ids,
		At:         event.At.UTC(),
	}
}

// publishing builds the AMQP message for an event.
func publishing(event core.RefreshEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(newMessage(event))
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal refresh event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.At.UTC(),
		Type:         "listings.refreshed",
		Body:         body,
	}, nil
}

// RabbitConfig configures a RabbitPublisher.
type RabbitConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// RabbitPublisher publishes refresh signals to a durable topic exchange.
type RabbitPublisher struct {
	cfg  RabbitConfig
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitPublisher dials the broker and declares the exchange.
func NewRabbitPublisher(cfg RabbitConfig) (*RabbitPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: broker url is required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("notify: exchange name is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange %q: %w", cfg.Exchange, err)
	}

	return &RabbitPublisher{cfg: cfg, conn: conn, ch: ch}, nil
}

// ListingsRefreshed implements core.Notifier.
func (p *RabbitPublisher) ListingsRefreshed(ctx context.Context, event core.RefreshEvent) error {
	msg, err := publishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.conn.IsClosed() {
		return errors.New("notify: publisher is closed")
	}

	err = p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
		p.ch = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogNotifier writes refresh signals to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ListingsRefreshed(ctx context.Context, event core.RefreshEvent) error {
	n.logger.InfoContext(ctx, "listings refreshed",
		"path", event.Path,
		"count", event.Count,
		"listing_ids", len(event.ListingIDs),
	)
	return nil
}
