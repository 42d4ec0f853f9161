// Package pubsub publishes round-committed events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

// RoundEvent is the payload of a round-committed message.
type RoundEvent struct {
	RunID            string    `json:"run_id"`
	Round            int       `json:"round"`
	Date             string    `json:"date"`
	Numbers          []int     `json:"numbers"`
	Bonus            int       `json:"bonus"`
	FirstPrize       int64     `json:"first_prize"`
	FirstWinners     int64     `json:"first_winners"`
	FirstTierStores  int       `json:"first_tier_stores"`
	SecondTierStores int       `json:"second_tier_stores"`
	CommittedAt      time.Time `json:"committed_at"`
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	now    func() time.Time
}

// New connects to Pub/Sub and publishes to an existing topic.
func New(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewWithTopic(client, client.Topic(topicID)), nil
}

// NewWithTopic wraps an existing client and topic (primarily for testing).
func NewWithTopic(client *pubsub.Client, topic *pubsub.Topic) *Publisher {
	return &Publisher{client: client, topic: topic, now: time.Now}
}

// RoundCommitted publishes one event per committed round and waits for the server ack.
func (p *Publisher) RoundCommitted(ctx context.Context, runID string, rec lotto.DrawRecord) error {
	if p == nil || p.topic == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	first := rec.Result.Prize(lotto.TierFirst)
	data, err := json.Marshal(RoundEvent{
		RunID:            runID,
		Round:            rec.Round,
		Date:             rec.Date,
		Numbers:          rec.Numbers,
		Bonus:            rec.Bonus,
		FirstPrize:       first.Amount,
		FirstWinners:     first.Winners,
		FirstTierStores:  len(rec.Result.Stores(lotto.TierFirst)),
		SecondTierStores: len(rec.Result.Stores(lotto.TierSecond)),
		CommittedAt:      p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event":  "round_committed",
			"round":  strconv.Itoa(rec.Round),
			"run_id": runID,
		},
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish round %d: %w", rec.Round, err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
