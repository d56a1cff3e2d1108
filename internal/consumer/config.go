// Package consumer reads ordered per-partition message batches from Kafka
// under a consumer group and hands each message to a processing handler.
package consumer

import (
	"crypto/tls"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Default values for consumer group configuration.
const (
	DefaultBaseDelay    = 100 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultJitterFactor = 0.5 // 50% jitter
)

// Configuration errors.
var (
	ErrNoBrokers       = errors.New("broker list cannot be empty")
	ErrEmptyTopic      = errors.New("topic cannot be empty")
	ErrEmptyGroupID    = errors.New("consumer group id cannot be empty")
	ErrInvalidDelay    = errors.New("base delay must be positive")
	ErrInvalidMaxDelay = errors.New("max delay must be >= base delay")
	ErrInvalidJitter   = errors.New("jitter factor must be between 0 and 1")
)

// Config holds configuration for the Kafka consumer group client.
type Config struct {
	// Brokers is the bootstrap broker address list.
	Brokers []string

	// Topic is the topic to consume.
	Topic string

	// GroupID names the consumer group for partition assignment and
	// progress tracking.
	GroupID string

	// FromBeginning selects the earliest offset for partitions without a
	// committed group offset. Otherwise consumption starts at the latest.
	FromBeginning bool

	// TLS enables mutual-TLS broker connections when non-nil.
	TLS *tls.Config

	// ClientID identifies this consumer instance to the brokers.
	ClientID string

	// BaseDelay is the initial delay before the first rejoin attempt.
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between rejoin attempts.
	MaxDelay time.Duration

	// JitterFactor is the fraction of delay to randomize (0.0 to 1.0).
	// A value of 0.5 means the actual delay will be in [delay*0.75, delay*1.25].
	JitterFactor float64
}

// DefaultConfig returns a Config with sensible default values.
// Brokers, Topic and GroupID must be provided by the caller.
func DefaultConfig(brokers []string, topic, groupID string) Config {
	return Config{
		Brokers:      brokers,
		Topic:        topic,
		GroupID:      groupID,
		ClientID:     "sessionizer-" + uuid.NewString()[:8],
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return ErrEmptyTopic
	}
	if c.GroupID == "" {
		return ErrEmptyGroupID
	}
	if c.BaseDelay <= 0 {
		return ErrInvalidDelay
	}
	if c.MaxDelay < c.BaseDelay {
		return ErrInvalidMaxDelay
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		return ErrInvalidJitter
	}
	return nil
}
