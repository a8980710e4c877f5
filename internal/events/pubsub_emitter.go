package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
)

const publishTimeout = 10 * time.Second

// PubSubEmitter publishes audit events to a Pub/Sub topic.
type PubSubEmitter struct {
	ctx    context.Context
	client *pubsub.Client
	topic  *pubsub.Topic
	owned  bool
}

// NewPubSubEmitter connects to Pub/Sub in projectID and publishes to topicID.
func NewPubSubEmitter(ctx context.Context, projectID, topicID string) (*PubSubEmitter, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e := NewPubSubEmitterWithClient(ctx, client, topicID)
	e.owned = true
	return e, nil
}

// NewPubSubEmitterWithClient publishes through an existing client.
func NewPubSubEmitterWithClient(ctx context.Context, client *pubsub.Client, topicID string) *PubSubEmitter {
	return &PubSubEmitter{
		ctx:    ctx,
		client: client,
		topic:  client.Topic(topicID),
	}
}

// Emit publishes synchronously so the publish result is logged.
func (e *PubSubEmitter) Emit(event AuditEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		log.Printf("[EVENT] pubsub marshal failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, publishTimeout)
	defer cancel()
	res := e.topic.Publish(ctx, &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"status":  event.Status,
			"outcome": event.Outcome,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		log.Printf("[EVENT] pubsub publish failed task=%s: %v", event.TaskID, err)
	}
}

// Close flushes pending messages and closes the client if this emitter created it.
func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	if e.owned {
		return e.client.Close()
	}
	return nil
}
