package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/voicerelay/internal/models"
	"github.com/go-redis/redis/v8"
)

const (
	QueueAudioReady = "queue:audio_ready"

	// Bots that stop polling must not grow the list without bound
	maxQueuedEvents = 100
)

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Name() string { return "redis" }

// Record publishes an audio-ready event for a persisted utterance.
func (q *Queue) Record(ctx context.Context, u *models.Utterance) error {
	return q.PublishAudioReady(ctx, models.NewAudioReadyEvent(u))
}

// PublishAudioReady pushes the event and trims the list to the newest entries.
func (q *Queue) PublishAudioReady(ctx context.Context, event models.AudioReadyEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, QueueAudioReady, data)
	pipe.LTrim(ctx, QueueAudioReady, -maxQueuedEvents, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish audio ready event: %w", err)
	}
	return nil
}

// NextAudioReady blocks up to timeout for the oldest event; nil when none arrived.
func (q *Queue) NextAudioReady(ctx context.Context, timeout time.Duration) (*models.AudioReadyEvent, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueAudioReady).Result()
	if err == redis.Nil {
		return nil, nil // No event available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var event models.AudioReadyEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// GetQueueLength reports how many audio-ready events are waiting.
func (q *Queue) GetQueueLength(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueAudioReady).Result()
}
