package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/kbryner/webfrontier/internal/events"
)

// PubSubSink publishes events as JSON messages to a Google Cloud Pub/Sub
// topic for downstream enrichment and storage consumers.
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink builds a sink targeting the given project and topic.
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubSink{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Consume publishes the batch and waits for server acknowledgements within
// the ctx deadline.
func (s *PubSubSink) Consume(ctx context.Context, batch []events.Event) error {
	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, e := range batch {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"stage":   string(e.Stage),
				"outcome": string(e.Outcome),
			},
		}))
	}
	for _, r := range results {
		if _, err := r.Get(ctx); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}

// Close stops the topic's publish goroutines and releases the client.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return s.client.Close()
}
