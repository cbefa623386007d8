// Package events implements the synchronous in-process event bus (§4.7):
// publish walks subscribers for an event's kind in registration order and
// calls each handler inline, removing any that return false. Grounded on
// the teacher's internal/network/simulation.go Peer/SimulatedNetwork
// pair — a small broadcast fan-out type guarding its subscriber list with
// a mutex — generalized from a two-channel (block/transaction) broadcast
// into per-kind lists of subscriber records, each identified by an opaque
// string handle (a random UUID), so a subscriber such as the miner keeps
// only its handle and never a back-pointer into the bus.
package events

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind identifies an event in the §6 vocabulary.
type Kind string

const (
	MinerStarted        Kind = "MinerStarted"
	MinerStopped        Kind = "MinerStopped"
	MinerStats          Kind = "MinerStats"
	KeyGeneratorStarted Kind = "KeyGeneratorStarted"
	KeyGeneratorStopped Kind = "KeyGeneratorStopped"
	KeyCreated          Kind = "KeyCreated"
	KeyLoaded           Kind = "KeyLoaded"
	KeySaved            Kind = "KeySaved"
	NewBlockReceived    Kind = "NewBlockReceived"
	BlockchainChanged   Kind = "BlockchainChanged"
	ActionStopMining    Kind = "ActionStopMining"
	ActionMineLocker    Kind = "ActionMineLocker"
	ActionQuit          Kind = "ActionQuit"
	NetworkStatus       Kind = "NetworkStatus"
	Syncing             Kind = "Syncing"
	SyncFinished        Kind = "SyncFinished"
)

// Event is the envelope delivered to subscribers. Payload is one of the
// typed structs below (or nil for kinds that carry no data, e.g.
// MinerStarted, ActionStopMining, ActionQuit, SyncFinished).
type Event struct {
	Kind    Kind
	Payload any
}

// MinerStoppedPayload carries MinerStopped's fields.
type MinerStoppedPayload struct {
	Success bool
	Full    bool
}

// MinerStatsPayload carries MinerStats's fields.
type MinerStatsPayload struct {
	Thread  int
	Speed   float64
	MaxDiff uint32
}

// KeyEventPayload carries KeyCreated/KeyLoaded/KeySaved's fields.
type KeyEventPayload struct {
	Path   string
	Public []byte
	Hash   []byte
}

// BlockchainChangedPayload carries BlockchainChanged's field.
type BlockchainChangedPayload struct {
	Index uint64
}

// ActionMineLockerPayload carries ActionMineLocker's fields.
type ActionMineLockerPayload struct {
	Index    uint64
	PrevHash []byte
	Keystore any // *cryptoutil.KeyPair; kept as any to avoid an import cycle
}

// NetworkStatusPayload carries NetworkStatus's fields.
type NetworkStatusPayload struct {
	Nodes  int
	Blocks uint64
}

// SyncingPayload carries Syncing's fields.
type SyncingPayload struct {
	Have   uint64
	Height uint64
}

// Handler is a subscriber callback. Returning false unsubscribes it.
type Handler func(Event) bool

// Handle is the opaque identifier (a random UUID string) returned by Subscribe, used to
// Unsubscribe without the subscriber ever holding a back-pointer into the
// bus.
type Handle string

type subscriber struct {
	handle  Handle
	handler Handler
}

// Bus is the synchronous in-process pub/sub bus.
type Bus struct {
	mu   sync.Mutex
	subs map[Kind][]subscriber
	log  *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		subs: make(map[Kind][]subscriber),
		log:  log,
	}
}

// Subscribe registers handler for kind and returns a handle that can
// later be passed to Unsubscribe.
func (b *Bus) Subscribe(kind Kind, handler Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := Handle(uuid.NewString())
	b.subs[kind] = append(b.subs[kind], subscriber{handle: handle, handler: handler})
	return handle
}

// Unsubscribe removes the subscriber identified by handle from kind, if
// present.
func (b *Bus) Unsubscribe(kind Kind, handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[kind]
	for i, s := range list {
		if s.handle == handle {
			b.subs[kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers event to every current subscriber of event.Kind, in
// registration order, removing any whose handler returns false. Delivery
// is synchronous: Publish does not return until every handler has run.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	list := append([]subscriber(nil), b.subs[event.Kind]...)
	b.mu.Unlock()

	if len(list) == 0 {
		return
	}

	var toRemove []Handle
	for _, s := range list {
		if !s.handler(event) {
			toRemove = append(toRemove, s.handle)
		}
	}

	if len(toRemove) == 0 {
		return
	}
	remove := make(map[Handle]bool, len(toRemove))
	for _, h := range toRemove {
		remove[h] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.subs[event.Kind][:0]
	for _, s := range b.subs[event.Kind] {
		if !remove[s.handle] {
			remaining = append(remaining, s)
		}
	}
	b.subs[event.Kind] = remaining
}
