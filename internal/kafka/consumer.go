package kafka

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was handled and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	retryBase = 200 * time.Millisecond
	retryMax  = 10 * time.Second
)

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log}
}

// Start fetches until ctx ends. Each partition is owned by one worker, so its
// offsets are handled and committed in order.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			work(ctx, in, h, c.r, c.log)
		}(jobs[i])
	}
	stop := func() {
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		select {
		case jobs[route(m, c.workers)] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func route(m kafka.Message, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.Topic))
	_, _ = h.Write([]byte(strconv.Itoa(m.Partition)))
	return int(h.Sum32() % uint32(workers))
}

// work handles messages in arrival order. A failing message is retried with
// backoff and blocks the rest of its partition; when ctx ends first it stays
// uncommitted and is redelivered to the group.
func work(ctx context.Context, in <-chan kafka.Message, h Handler, commit committer, log *zap.Logger) {
	for m := range in {
		if !handle(ctx, m, h, log) {
			for range in {
			}
			return
		}
		if err := commit.CommitMessages(ctx, m); err != nil {
			log.Warn("commit offset", zap.String("topic", m.Topic), zap.Error(err))
		}
	}
}

func handle(ctx context.Context, m kafka.Message, h Handler, log *zap.Logger) bool {
	delay := retryBase
	for {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		log.Warn("handler failed",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, retryMax)
	}
}
