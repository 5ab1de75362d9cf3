package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// BatchMessage is the published envelope. The transport enforces a
// hard per-message size ceiling, so batches are split before publish
// (see Batcher) rather than truncated here.
type BatchMessage struct {
	Type      string             `json:"type"`
	Updates   []models.MatchDiff `json:"updates"`
	Count     int                `json:"count"`
	Timestamp time.Time          `json:"timestamp"`
}

const batchMessageType = "batch:updates"

// NewBatchMessage builds the standard envelope around a set of diffs.
func NewBatchMessage(updates []models.MatchDiff) BatchMessage {
	return BatchMessage{
		Type:      batchMessageType,
		Updates:   updates,
		Count:     len(updates),
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers batch messages to a topic. One topic per sport.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg BatchMessage) error
}

// StreamPublisher publishes batches to Redis Streams, one stream per
// topic, for the downstream broadcasters to fan out.
type StreamPublisher struct {
	client *redis.Client
}

// NewStreamPublisher creates a stream publisher on an existing client.
func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{client: client}
}

// TopicForSport names the per-sport update stream.
func TopicForSport(sportKey string) string {
	return fmt.Sprintf("matches.updates.%s", sportKey)
}

// Publish appends the message to the topic's stream.
func (p *StreamPublisher) Publish(ctx context.Context, topic string, msg BatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling batch for %s: %w", topic, err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"data":  string(data),
			"type":  msg.Type,
			"count": msg.Count,
		},
	}).Err()
}
