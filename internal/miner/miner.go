// Package miner implements the miner coordinator (§4.5): a job queue, a
// supervisor goroutine, and an event-bus subscription reacting to
// ActionStopMining/ActionMineLocker. Grounded on the teacher's
// internal/consensus/engine.go (a stopChan/sync.WaitGroup-guarded main
// loop selecting between a ticker, a stop signal and an inbound channel,
// logged with a "CONSENSUS_ENGINE:" style prefix) generalized from a
// fixed-interval proposer loop into a job-queue-driven hashing
// supervisor, with the worker fleet itself supervised by
// golang.org/x/sync/errgroup instead of a single goroutine.
package miner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/chainconst"
	"nameledger.dev/nameledger/internal/cryptoutil"
	"nameledger.dev/nameledger/internal/events"
	"nameledger.dev/nameledger/internal/validator"
)

// Chain is the read/write surface the miner needs from the chain store.
type Chain interface {
	validator.ChainView
	AddBlock(b *block.Block) error
	SetOption(name, value string) error
	NextAllowedBlock() (uint64, error)
}

// Job is a unit of mining work: a header template (already carrying
// index/difficulty/transaction as appropriate) and the keystore to sign
// with (§4.5).
type Job struct {
	Template *block.Block
	Keystore *cryptoutil.KeyPair
}

// Miner is the coordinator. One Miner serves one chain; AddBlock enqueues
// work, Start/Stop manage its supervisor goroutine.
type Miner struct {
	chain   Chain
	bus     *events.Bus
	log     *zap.Logger
	threads int
	lower   bool

	jobs chan Job

	mining    atomic.Bool
	running   atomic.Bool
	cancel    atomic.Bool // polled by workers every nonce iteration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	busHandle events.Handle
}

// New constructs a Miner. threads == 0 means "use the host's CPU count".
// lower is stored on the Miner but not acted on: workers run at the
// process's normal OS scheduling priority whatever its value.
func New(chain Chain, bus *events.Bus, threads int, lower bool, log *zap.Logger) *Miner {
	return &Miner{
		chain:    chain,
		bus:      bus,
		log:      log,
		threads:  threads,
		lower:    lower,
		jobs:     make(chan Job, 8),
		stopChan: make(chan struct{}),
	}
}

// Start launches the supervisor goroutine and subscribes to the event
// bus (§4.5).
func (m *Miner) Start() {
	if !m.running.CompareAndSwap(false, true) {
		return
	}
	m.log.Info("miner supervisor starting")

	m.busHandle = m.bus.Subscribe(events.ActionMineLocker, func(e events.Event) bool {
		if m.mining.Load() {
			return true
		}
		payload, ok := e.Payload.(events.ActionMineLockerPayload)
		if !ok {
			return true
		}
		keystore, ok := payload.Keystore.(*cryptoutil.KeyPair)
		if !ok {
			return true
		}
		template := &block.Block{
			Index:         payload.Index,
			PrevBlockHash: payload.PrevHash,
			Version:       chainconst.ChainVersion,
			Difficulty:    chainconst.LockerDifficulty,
		}
		if payload.Index == chainconst.LockerBlockStart {
			template.Difficulty = chainconst.ZoneDifficulty
		}
		m.AddJob(Job{Template: template, Keystore: keystore})
		return true
	})
	m.bus.Subscribe(events.ActionStopMining, func(events.Event) bool {
		m.cancel.Store(true)
		return true
	})

	m.wg.Add(1)
	go m.supervise()
}

// Stop cancels the in-flight job (if any), signals the supervisor to exit
// and waits for it.
func (m *Miner) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.cancel.Store(true)
	close(m.stopChan)
	m.bus.Unsubscribe(events.ActionMineLocker, m.busHandle)
	m.wg.Wait()
}

// AddJob enqueues a job and wakes the supervisor (§4.5 "add_block").
func (m *Miner) AddJob(job Job) {
	select {
	case m.jobs <- job:
	default:
		m.log.Warn("miner job queue full, dropping job", zap.Uint64("index", job.Template.Index))
	}
}

func (m *Miner) supervise() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopChan:
			return
		case job := <-m.jobs:
			m.runJob(job)
		}
	}
}

func (m *Miner) runJob(job Job) {
	if !cryptoutil.KeyIsStrong(job.Keystore.Public, chainconst.KeystoreDifficulty) {
		m.publishStopped(false, job.Template.IsFull())
		return
	}

	full := job.Template.IsFull()
	if full {
		height, err := m.chain.Height()
		if err != nil {
			m.publishStopped(false, true)
			return
		}
		lastHash, err := m.chain.LastHash()
		if err != nil {
			m.publishStopped(false, true)
			return
		}
		job.Template.Index = height + 1
		job.Template.PrevBlockHash = lastHash
	} else {
		lastHash, err := m.chain.LastHash()
		if err != nil {
			m.publishStopped(false, false)
			return
		}
		if !equalBytes(lastHash, job.Template.PrevBlockHash) {
			m.publishStopped(false, false)
			return
		}
		height, err := m.chain.Height()
		if err != nil || height >= job.Template.Index {
			m.publishStopped(false, false)
			return
		}
	}

	m.mining.Store(true)
	m.cancel.Store(false)
	m.bus.Publish(events.Event{Kind: events.MinerStarted})

	threads := m.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	var winner atomic.Pointer[block.Block]
	var liveWorkers atomic.Int64
	liveWorkers.Store(int64(threads))
	var publishedStop atomic.Bool

	g, ctx := errgroup.WithContext(context.Background())
	for t := 0; t < threads; t++ {
		workerID := t
		time.Sleep(10 * time.Millisecond)
		g.Go(func() error {
			defer func() {
				if liveWorkers.Add(-1) == 0 && winner.Load() == nil {
					if publishedStop.CompareAndSwap(false, true) {
						m.mining.Store(false)
						m.bus.Publish(events.Event{Kind: events.MinerStopped, Payload: events.MinerStoppedPayload{Success: false, Full: full}})
					}
				}
			}()
			w := &hashWorker{
				id:     workerID,
				chain:  m.chain,
				cancel: &m.cancel,
				bus:    m.bus,
				log:    m.log,
			}
			found := w.run(ctx, cloneTemplate(job.Template))
			if found != nil && winner.CompareAndSwap(nil, found) {
				// Stop the rest of the fleet immediately: without this,
				// losing workers keep hashing until each independently
				// finds its own solution, so the job costs the
				// slowest-of-T attempt instead of the fastest (§4.5).
				m.cancel.Store(true)
			}
			return nil
		})
	}
	g.Wait()

	found := winner.Load()
	if found == nil {
		return
	}

	found.Sign(job.Keystore)
	verdict := validator.Classify(found, m.chain, time.Now().Unix())
	if verdict != validator.Good {
		m.log.Info("mined block lost the race", zap.Stringer("verdict", verdict), zap.Uint64("index", found.Index))
		m.mining.Store(false)
		m.bus.Publish(events.Event{Kind: events.MinerStopped, Payload: events.MinerStoppedPayload{Success: false, Full: full}})
		return
	}

	if err := m.chain.AddBlock(found); err != nil {
		m.log.Error("failed to append winning block", zap.Error(err))
		m.mining.Store(false)
		m.bus.Publish(events.Event{Kind: events.MinerStopped, Payload: events.MinerStoppedPayload{Success: false, Full: full}})
		return
	}
	if found.Index == 1 {
		_ = m.chain.SetOption("origin", fmt.Sprintf("%x", found.Hash))
	}

	m.mining.Store(false)
	m.bus.Publish(events.Event{Kind: events.MinerStopped, Payload: events.MinerStoppedPayload{Success: true, Full: full}})
	m.bus.Publish(events.Event{Kind: events.BlockchainChanged, Payload: events.BlockchainChangedPayload{Index: found.Index}})
}

func (m *Miner) publishStopped(success, full bool) {
	m.bus.Publish(events.Event{Kind: events.MinerStopped, Payload: events.MinerStoppedPayload{Success: success, Full: full}})
}

func cloneTemplate(b *block.Block) *block.Block {
	clone := *b
	return &clone
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
