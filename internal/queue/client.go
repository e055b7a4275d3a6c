package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/hibiken/asynq"
)

// Client hands transcode records to the recorder over Redis.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) Record(ctx context.Context, rec domain.TranscodeRecord) error {
	task, err := NewRecordTask(rec)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Retention(time.Hour),
	); err != nil {
		return fmt.Errorf("enqueue record request_id=%s: %w", rec.RequestID, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
