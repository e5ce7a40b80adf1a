package hub_test

import (
	"fmt"
	"testing"

	"github.com/controlhub/realtime-gateway/internal/hub"
	"github.com/controlhub/realtime-gateway/internal/protocol"
	"go.uber.org/zap"
)

func TestBroadcast_DeliversToAllLivePeers(t *testing.T) {
	r := hub.NewRegistry()
	b := hub.NewBroadcaster(r, zap.NewNop())

	peers := make([]*fakePeer, 5)
	for i := range peers {
		peers[i] = &fakePeer{id: fmt.Sprintf("peer-%d", i)}
		r.Register(peers[i].ID(), peers[i])
	}

	env, err := protocol.New(protocol.TypePong, "", protocol.PongData{Timestamp: protocol.Now()})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}
	b.Broadcast(env)

	for _, p := range peers {
		if p.deliveredCount() != 1 {
			t.Errorf("Peer %s expected 1 delivery, got %d", p.ID(), p.deliveredCount())
		}
	}
}

func TestBroadcast_PrunesDeadPeersWithoutAbortingDelivery(t *testing.T) {
	r := hub.NewRegistry()
	b := hub.NewBroadcaster(r, zap.NewNop())

	live := []*fakePeer{{id: "live-1"}, {id: "live-2"}, {id: "live-3"}}
	dead := []*fakePeer{{id: "dead-1", dead: true}, {id: "dead-2", dead: true}}
	for _, p := range live {
		r.Register(p.ID(), p)
	}
	for _, p := range dead {
		r.Register(p.ID(), p)
	}

	env, err := protocol.New(protocol.TypePong, "", protocol.PongData{Timestamp: protocol.Now()})
	if err != nil {
		t.Fatalf("Failed to build envelope: %v", err)
	}
	b.Broadcast(env)

	for _, p := range live {
		if p.deliveredCount() != 1 {
			t.Errorf("Live peer %s expected 1 delivery, got %d", p.ID(), p.deliveredCount())
		}
	}
	if r.Count() != len(live) {
		t.Errorf("Expected %d peers after pruning, got %d", len(live), r.Count())
	}
	for _, p := range dead {
		if p.closed != 1 {
			t.Errorf("Dead peer %s expected to be closed once, closed %d times", p.ID(), p.closed)
		}
	}
}
