// Package event carries request lifecycle events between the bridge and
// whoever listens: the access logger, the /events stream, or a NATS cluster.
package event

import (
	"context"
	"fmt"

	"github.com/awantoch/edgebridge/config"
	"github.com/awantoch/edgebridge/constants"
)

// EventBus publishes JSON payloads to topics and fans them out to
// subscribers.
type EventBus interface {
	Publish(topic string, payload any) error
	// Subscribe delivers each payload to handler until ctx is done.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error
	Close() error
}

// NewInProcEventBus returns a new in-memory event bus. Used when the event
// driver is "memory" or omitted.
func NewInProcEventBus() *WatermillEventBus {
	return NewWatermillInMemBus()
}

// NewEventBusFromConfig returns an EventBus based on cfg. Supported: memory
// (default) and nats (requires url). Unknown drivers fail cleanly.
func NewEventBusFromConfig(cfg *config.EventConfig) (EventBus, error) {
	if cfg == nil || cfg.Driver == "" || cfg.Driver == constants.EventDriverMemory {
		return NewWatermillInMemBus(), nil
	}
	switch cfg.Driver {
	case constants.EventDriverNATS:
		if cfg.URL == "" {
			return nil, fmt.Errorf("NATS driver requires url")
		}
		clusterID, clientID := cfg.ClusterID, cfg.ClientID
		if clusterID == "" {
			clusterID = constants.DefaultNATSClusterID
		}
		if clientID == "" {
			clientID = constants.DefaultNATSClientID
		}
		bus, err := NewWatermillNATSBus(clusterID, clientID, cfg.URL)
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus driver: %s", cfg.Driver)
	}
}
