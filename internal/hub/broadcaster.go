package hub

import (
	"github.com/controlhub/realtime-gateway/internal/protocol"
	"go.uber.org/zap"
)

// Broadcaster delivers an envelope to every registered peer. Delivery
// is fire and forget, at most once per peer: a failed write unregisters
// that peer and the walk continues.
type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Broadcast serializes the envelope once and pushes it to every open
// peer, pruning the ones whose transport has died.
func (b *Broadcaster) Broadcast(env protocol.Envelope) {
	frame, err := protocol.Encode(env)
	if err != nil {
		b.logger.Error("failed to encode broadcast envelope",
			zap.Error(err),
			zap.String("type", env.Type),
		)
		return
	}

	b.registry.ForEach(func(p Peer) {
		if err := p.Deliver(frame, env.Type); err != nil {
			b.logger.Debug("dropping dead peer",
				zap.String("client_id", p.ID()),
				zap.Error(err),
			)
			b.registry.Unregister(p.ID())
			p.Close()
		}
	})
}
