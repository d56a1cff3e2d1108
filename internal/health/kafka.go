package health

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaChecker implements health checking for Kafka brokers.
type KafkaChecker struct {
	brokers []string
	dialer  *kafka.Dialer
}

// NewKafkaChecker creates a new Kafka health checker. tlsConfig may be nil
// for plaintext brokers.
func NewKafkaChecker(brokers []string, tlsConfig *tls.Config) *KafkaChecker {
	return &KafkaChecker{
		brokers: brokers,
		dialer: &kafka.Dialer{
			Timeout:   5 * time.Second,
			DualStack: true,
			TLS:       tlsConfig,
		},
	}
}

// HealthCheck dials the brokers in order and succeeds on the first one that
// answers. It fails only when no broker is reachable.
func (k *KafkaChecker) HealthCheck(ctx context.Context) error {
	if len(k.brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var lastErr error
	for _, broker := range k.brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", broker, err)
			continue
		}
		conn.Close()
		return nil
	}
	return lastErr
}
