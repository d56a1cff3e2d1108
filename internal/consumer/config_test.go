package consumer

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return DefaultConfig([]string{"broker-1:9092"}, "clickstream", "sessionizer")
}

func TestDefaultConfig(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig is not valid: %v", err)
	}
	if cfg.BaseDelay != DefaultBaseDelay {
		t.Errorf("BaseDelay = %v, want %v", cfg.BaseDelay, DefaultBaseDelay)
	}
	if cfg.MaxDelay != DefaultMaxDelay {
		t.Errorf("MaxDelay = %v, want %v", cfg.MaxDelay, DefaultMaxDelay)
	}
	if cfg.FromBeginning {
		t.Error("FromBeginning defaults to true, want false")
	}
	if !strings.HasPrefix(cfg.ClientID, "sessionizer-") {
		t.Errorf("ClientID = %q, want sessionizer- prefix", cfg.ClientID)
	}
}

func TestDefaultConfig_UniqueClientIDs(t *testing.T) {
	a := validConfig()
	b := validConfig()
	if a.ClientID == b.ClientID {
		t.Error("two consumer instances share a client id")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "no brokers",
			mutate:  func(c *Config) { c.Brokers = nil },
			wantErr: ErrNoBrokers,
		},
		{
			name:    "empty topic",
			mutate:  func(c *Config) { c.Topic = "" },
			wantErr: ErrEmptyTopic,
		},
		{
			name:    "empty group id",
			mutate:  func(c *Config) { c.GroupID = "" },
			wantErr: ErrEmptyGroupID,
		},
		{
			name:    "zero base delay",
			mutate:  func(c *Config) { c.BaseDelay = 0 },
			wantErr: ErrInvalidDelay,
		},
		{
			name:    "max delay below base delay",
			mutate:  func(c *Config) { c.MaxDelay = c.BaseDelay / 2 },
			wantErr: ErrInvalidMaxDelay,
		},
		{
			name:    "jitter above one",
			mutate:  func(c *Config) { c.JitterFactor = 1.5 },
			wantErr: ErrInvalidJitter,
		},
		{
			name:    "negative jitter",
			mutate:  func(c *Config) { c.JitterFactor = -0.1 },
			wantErr: ErrInvalidJitter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ZeroJitterIsValid(t *testing.T) {
	cfg := validConfig()
	cfg.JitterFactor = 0
	cfg.BaseDelay = 50 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}
