package manager

import (
	"context"
	"encoding/json"

	"github.com/cuemby/burrow/pkg/broker"
	"github.com/cuemby/burrow/pkg/projector"
)

// Subscriber receives after-task notices
type Subscriber chan projector.Notice

// Subscribe registers a subscriber. Notices are dropped for subscribers
// whose buffer is full. Returns nil when notices are disabled.
func (m *Manager) Subscribe() Subscriber {
	if m.notices == nil {
		return nil
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()

	sub := make(Subscriber, 64)
	m.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (m *Manager) Unsubscribe(sub Subscriber) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.subscribers[sub] {
		delete(m.subscribers, sub)
		close(sub)
	}
}

func (m *Manager) fanOut(_ context.Context, msg *broker.Message) error {
	var n projector.Notice
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		m.logger.Debug().Err(err).Msg("Skipping malformed notice")
		return nil
	}

	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for sub := range m.subscribers {
		select {
		case sub <- n:
		default:
		}
	}
	return nil
}
