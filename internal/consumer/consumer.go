package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one record delivered from a partition lane.
type Message struct {
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// laneFetcher is the slice of kafka.Reader the lane loop uses.
type laneFetcher interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// offsetCommitter is the slice of kafka.Generation the lane loop uses.
type offsetCommitter interface {
	CommitOffsets(offsets map[string]map[int]int64) error
}

// Handler processes one message. Returning an error marks it unrecoverable:
// the lane stops without committing the offset and the consumer surfaces the
// error, relying on redelivery after restart for recovery. Recoverable
// conditions (such as a malformed payload) must be handled inside the handler
// and reported as nil.
type Handler func(ctx context.Context, msg Message) error

// Consumer reads a topic under a consumer group, running one sequential
// processing lane per assigned partition. Offsets are committed only after
// the handler succeeds, giving at-least-once delivery into an idempotent
// pipeline. Group join failures are retried with exponential backoff and
// jitter.
type Consumer struct {
	config  Config
	handler Handler
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand // protected by mu

	// rejoinCount tracks consecutive group join attempts (atomic)
	rejoinCount int64

	fatalMu sync.Mutex
	fatal   error
}

// NewConsumer creates a new consumer group client with the given configuration.
// The handler is called for each message, sequentially per partition.
func NewConsumer(config Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		config:  config,
		handler: handler,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run joins the consumer group and blocks until the context is cancelled or
// a handler reports an unrecoverable error. Cancellation stops all lanes,
// lets in-flight work drain, and leaves the group cleanly.
func (c *Consumer) Run(ctx context.Context) error {
	startOffset := kafka.LastOffset
	if c.config.FromBeginning {
		startOffset = kafka.FirstOffset
	}

	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:          c.config.GroupID,
		Brokers:     c.config.Brokers,
		Topics:      []string{c.config.Topic},
		Dialer:      c.dialer(),
		StartOffset: startOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			c.logger.Warn("failed to close consumer group", slog.String("error", err.Error()))
		}
	}()

	for {
		if err := c.fatalErr(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		gen, err := group.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("consumer stopping due to context cancellation")
				return ctx.Err()
			}
			if errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}

			attempt := atomic.AddInt64(&c.rejoinCount, 1)
			delay := c.computeBackoff(attempt)
			c.logger.Warn("failed to join consumer group",
				slog.String("error", err.Error()),
				slog.Int64("attempt", attempt),
				slog.Duration("retry_in", delay))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		atomic.StoreInt64(&c.rejoinCount, 0)

		// A lane may have failed while the rebalance was in flight. Surface
		// that error now instead of starting lanes for a doomed generation.
		if err := c.fatalErr(); err != nil {
			return err
		}

		assignments := gen.Assignments[c.config.Topic]
		c.logger.Info("joined consumer group",
			slog.String("group_id", c.config.GroupID),
			slog.String("topic", c.config.Topic),
			slog.Int("partitions", len(assignments)))

		for _, assignment := range assignments {
			partition, offset := assignment.ID, assignment.Offset
			gen.Start(func(ctx context.Context) {
				c.runLane(ctx, gen, partition, offset)
			})
		}

		// The next call to group.Next blocks until this generation ends,
		// either through rebalance, lane failure, or cancellation.
	}
}

// runLane consumes one partition sequentially: the next message is not
// fetched until the current message's full pipeline has completed and its
// offset is committed.
func (c *Consumer) runLane(ctx context.Context, gen *kafka.Generation, partition int, offset int64) {
	logger := c.logger.With(slog.Int("partition", partition))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   c.config.Brokers,
		Topic:     c.config.Topic,
		Partition: partition,
		Dialer:    c.dialer(),
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("failed to close partition reader", slog.String("error", err.Error()))
		}
	}()

	if err := reader.SetOffset(offset); err != nil {
		logger.Error("failed to seek partition reader",
			slog.Int64("offset", offset),
			slog.String("error", err.Error()))
		return
	}

	logger.Info("partition lane started", slog.Int64("offset", offset))

	c.consumeLoop(ctx, logger, reader, gen, partition)
}

// consumeLoop runs the fetch, handle, commit cycle for one partition. The
// offset is committed strictly after the handler succeeds; a handler error
// stops the lane with nothing committed, so the message is redelivered.
func (c *Consumer) consumeLoop(ctx context.Context, logger *slog.Logger, fetcher laneFetcher, committer offsetCommitter, partition int) {
	for {
		msg, err := fetcher.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("partition lane draining")
			} else {
				logger.Warn("partition read failed, leaving generation",
					slog.String("error", err.Error()))
			}
			return
		}

		if err := c.handler(ctx, Message{
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Time:      msg.Time,
		}); err != nil {
			logger.Error("message handler failed",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
			c.setFatal(err)
			return
		}

		// Commit strictly after successful processing. A crash between
		// processing and commit causes redelivery, which the idempotent
		// writer and recompute aggregator absorb.
		if err := committer.CommitOffsets(map[string]map[int]int64{
			c.config.Topic: {partition: msg.Offset + 1},
		}); err != nil {
			logger.Warn("failed to commit offset, leaving generation",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()))
			return
		}
	}
}

func (c *Consumer) dialer() *kafka.Dialer {
	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
		ClientID:  c.config.ClientID,
		TLS:       c.config.TLS,
	}
}

func (c *Consumer) setFatal(err error) {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	if c.fatal == nil {
		c.fatal = err
	}
}

func (c *Consumer) fatalErr() error {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatal
}

// computeBackoff calculates the rejoin delay for the given 1-based attempt:
// exponential backoff starting at BaseDelay, capped at MaxDelay, with jitter.
func (c *Consumer) computeBackoff(attempt int64) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	// BaseDelay * 2^(attempt-1) using bit shifting. Cap the shift at 30 to
	// prevent overflow.
	shift := uint(0)
	if attempt > 1 {
		shift = uint(attempt - 1)
	}
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)

	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	if c.config.JitterFactor > 0 {
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}
