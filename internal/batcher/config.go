package batcher

import (
	"errors"
	"fmt"
	"time"
)

// Defaults sized for a bursty instrumentation stream of a few hundred
// events per second.
const (
	DefaultWindow       = 100 * time.Millisecond
	DefaultMaxBatchSize = 50
	DefaultQueueSize    = 10000
)

var (
	ErrInvalidWindow    = errors.New("batcher: window must be positive")
	ErrInvalidBatchSize = errors.New("batcher: max batch size must be positive")
	ErrInvalidQueueSize = errors.New("batcher: queue size must be positive")
)

// Config controls the accumulation window and flush triggers.
type Config struct {
	// Window is the maximum time an event waits before being included in
	// some batch.
	Window time.Duration `mapstructure:"window"`

	// MaxBatchSize forces an immediate flush when the buffer reaches this
	// many events, regardless of the window.
	MaxBatchSize int `mapstructure:"max_batch_size"`

	// PreserveOrder sorts each batch ascending by event timestamp, ties
	// broken by arrival order.
	PreserveOrder bool `mapstructure:"preserve_order"`

	// QueueSize is the capacity of the ingress queue between producers
	// and the accumulation loop. Not updatable after construction.
	QueueSize int `mapstructure:"queue_size"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Window:        DefaultWindow,
		MaxBatchSize:  DefaultMaxBatchSize,
		PreserveOrder: true,
		QueueSize:     DefaultQueueSize,
	}
}

// Validate rejects configurations that would leave the engine in an
// undefined state.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return ErrInvalidWindow
	}
	if c.MaxBatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.QueueSize <= 0 {
		return ErrInvalidQueueSize
	}
	return nil
}

// ConfigUpdate is a partial configuration merge. Nil fields keep their
// current values. QueueSize is fixed at construction and cannot change.
type ConfigUpdate struct {
	Window        *time.Duration
	MaxBatchSize  *int
	PreserveOrder *bool
}

func (u ConfigUpdate) apply(c Config) (Config, error) {
	if u.Window != nil {
		c.Window = *u.Window
	}
	if u.MaxBatchSize != nil {
		c.MaxBatchSize = *u.MaxBatchSize
	}
	if u.PreserveOrder != nil {
		c.PreserveOrder = *u.PreserveOrder
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config update: %w", err)
	}
	return c, nil
}
