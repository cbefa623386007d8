package miner

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/cryptoutil"
	"nameledger.dev/nameledger/internal/events"
)

// hashWorker is a single hashing worker (§4.6): given a mutable header
// template, a shared cancel flag and a worker id, it searches nonces
// until it finds a winning hash, is cancelled, or the chain advances
// past its target index.
type hashWorker struct {
	id     int
	chain  Chain
	cancel *atomic.Bool
	bus    *events.Bus
	log    *zap.Logger
}

func freshRandom() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(buf[:])
}

// run implements the worker loop. It returns the winning header (hash
// set, not yet signed) or nil if cancelled / superseded.
func (w *hashWorker) run(ctx context.Context, header *block.Block) *block.Block {
	full := header.IsFull()

	for {
		header.Random = freshRandom()
		header.Timestamp = time.Now().Unix()

		if full {
			height, err := w.chain.Height()
			if err == nil {
				header.Index = height + 1
			}
			lastHash, err := w.chain.LastHash()
			if err == nil {
				header.PrevBlockHash = lastHash
			}
		}

		if full {
			next, err := w.chain.NextAllowedBlock()
			if err == nil && next > header.Index {
				if w.sleepOrCancel(ctx, time.Second) {
					return nil
				}
				continue
			}
		}

		found, advanced := w.searchNonces(header)
		if found != nil {
			return found
		}
		if advanced {
			continue
		}
		return nil
	}
}

// searchNonces runs the inner nonce loop (§4.6 step 3) until it finds a
// winning hash, is cancelled, or observes the chain height advance past
// header.Index (in which case it returns advanced=true so run() can
// re-read the template and retry).
func (w *hashWorker) searchNonces(header *block.Block) (found *block.Block, advanced bool) {
	var maxDiff uint32
	lastTimestampRefresh := time.Now()
	lastStats := time.Now()

	for nonce := uint64(0); ; nonce++ {
		if w.cancel.Load() {
			return nil, false
		}

		header.Nonce = nonce
		h := header.ContentHash()
		diff := cryptoutil.LeadingZeroBits(h)
		if diff > maxDiff {
			maxDiff = diff
		}

		if diff >= header.Difficulty {
			header.Hash = h
			return header, false
		}

		now := time.Now()
		if now.Sub(lastTimestampRefresh) >= time.Second {
			header.Timestamp = now.Unix()
			lastTimestampRefresh = now
		}
		if now.Sub(lastStats) >= 5*time.Second {
			w.bus.Publish(events.Event{Kind: events.MinerStats, Payload: events.MinerStatsPayload{
				Thread:  w.id,
				Speed:   float64(nonce) / now.Sub(lastStats).Seconds(),
				MaxDiff: maxDiff,
			}})
			lastStats = now

			height, err := w.chain.Height()
			if err == nil && height >= header.Index {
				return nil, true
			}
		}
	}
}

func (w *hashWorker) sleepOrCancel(ctx context.Context, d time.Duration) (cancelled bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		if w.cancel.Load() {
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-timer.C:
			return false
		case <-time.After(10 * time.Millisecond):
			if w.cancel.Load() {
				return true
			}
		}
	}
}
