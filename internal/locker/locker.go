// Package locker implements the locker sub-protocol (§4.4): deterministic
// committee selection for a full block and the per-candidate eligibility
// check the validator calls into. It is grounded on the teacher's
// internal/consensus/consensus_state.go (a pure function operating over a
// read-only chain view, no goroutines, no package-level state) adapted to
// the bounded pseudo-random walk the locker committee rule specifies in
// place of the teacher's proposer-rotation schedule.
package locker

import (
	"encoding/binary"

	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/chainconst"
)

// ChainView is the minimal read surface locker needs from the chain
// store, kept narrow so this package does not import chainstore (and can
// be tested against a fake).
type ChainView interface {
	GetBlock(index uint64) (*block.Block, error)
}

func tailUint64(hash []byte) uint64 {
	if len(hash) < 8 {
		padded := make([]byte, 8)
		copy(padded[8-len(hash):], hash)
		return binary.BigEndian.Uint64(padded)
	}
	return binary.BigEndian.Uint64(hash[len(hash)-8:])
}

// Signers computes the deterministic committee of f: a bounded
// pseudo-random walk over the indices start .. start+LockerBlockInterval-1
// (start = f.Index - min(f.Index, LockerBlockInterval) + 1), skipping f's
// own miner and any key already selected, per §4.4's `signers(f)`. When
// f.Index >= LockerBlockInterval that range ends at f; on a shorter chain
// it starts at 1 and also covers blocks above f.
//
// The source's walk is unbounded (count++ forever); per the locker-walk
// termination design note (§9), this implementation bounds the walk at
// chainconst.LockerWalkBound() and returns whatever it has found so far
// on exhaustion — callers must tolerate a short list.
func Signers(chain ChainView, f *block.Block) ([][]byte, error) {
	tail := tailUint64(f.Hash)

	window := f.Index
	if window > chainconst.LockerBlockInterval {
		window = chainconst.LockerBlockInterval
	}
	window--
	start := f.Index - window

	seen := make(map[string]bool)
	var list [][]byte
	bound := chainconst.LockerWalkBound()

	for count := uint64(1); count <= bound && uint64(len(list)) < uint64(chainconst.LockerBlockLockers); count++ {
		idx := start + (tail*count)%chainconst.LockerBlockInterval
		if idx == 0 {
			continue
		}
		b, err := chain.GetBlock(idx)
		if err != nil {
			continue
		}
		if b == nil {
			continue
		}
		if equalBytes(b.PubKey, f.PubKey) {
			continue
		}
		key := string(b.PubKey)
		if seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, b.PubKey)
	}
	return list, nil
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

func contains(list [][]byte, key []byte) bool {
	for _, k := range list {
		if equalBytes(k, key) {
			return true
		}
	}
	return false
}

// CheckBlockForSigning reports whether cand is an eligible locker
// signature for full block f: cand.PubKey must be in signers(f), and no
// earlier block strictly between f and cand may already carry the same
// pub_key (one signature per signer per full block, §4.4).
func CheckBlockForSigning(chain ChainView, cand, f *block.Block) (bool, error) {
	signers, err := Signers(chain, f)
	if err != nil {
		return false, err
	}
	if !contains(signers, cand.PubKey) {
		return false, nil
	}
	for idx := f.Index + 1; idx < cand.Index; idx++ {
		b, err := chain.GetBlock(idx)
		if err != nil {
			continue
		}
		if b == nil {
			continue
		}
		if equalBytes(b.PubKey, cand.PubKey) {
			return false, nil
		}
	}
	return true, nil
}
