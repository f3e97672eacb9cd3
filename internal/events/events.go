// Package events announces catalog changes to downstream consumers such as
// search indexers and cache invalidators. Delivery is broker-agnostic:
// RabbitMQ and Google Pub/Sub backends are provided.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Channel is the broker channel all catalog events are published on.
const Channel = "catalog.events"

// Event types carried in the "type" attribute and the payload.
const (
	ProductCreated      = "product.created"
	ProductUpdated      = "product.updated"
	ProductDeleted      = "product.deleted"
	ProductImageUpdated = "product.image_updated"
)

// ProductEvent is the payload published for every catalog change.
type ProductEvent struct {
	Type      string    `json:"type"`
	ProductID int       `json:"product_id"`
	At        time.Time `json:"at"`
}

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Publisher wraps a backend with the catalog event API.
type Publisher struct {
	backend Backend
}

// NewPublisher constructs a Publisher for the provided backend.
func NewPublisher(backend Backend) *Publisher {
	return &Publisher{backend: backend}
}

// PublishProduct announces a product change on the catalog channel.
func (p *Publisher) PublishProduct(ctx context.Context, eventType string, productID int) error {
	event := ProductEvent{
		Type:      eventType,
		ProductID: productID,
		At:        time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.backend.Publish(ctx, Channel, data, map[string]string{"type": eventType})
	return err
}

// Subscribe consumes catalog events, decoding each payload before invoking
// the callback.
func (p *Publisher) Subscribe(ctx context.Context, callback func(ctx context.Context, event ProductEvent) error) error {
	return p.backend.Subscribe(ctx, Channel, func(ctx context.Context, msg Message) error {
		var event ProductEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// Undecodable payloads are dropped rather than redelivered forever.
			return nil
		}
		return callback(ctx, event)
	})
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}
