// Package validator implements classify(candidate) (§4.3): the ordered
// rule sequence that turns an inbound block into one of five verdicts.
// Grounded on the teacher's internal/consensus/validation.go — a small
// service type wrapping chain access behind an interface — but the
// teacher's ValidateBlock is a placeholder returning nil; this package
// replaces it with the full ordered-clause pure function the spec
// requires, stated as an exhaustive switch the way the teacher's
// TxType/TxStandard enum pattern (internal/core/transaction.go) is used
// elsewhere in the corpus for state-machine-shaped decisions.
package validator

import (
	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/chainconst"
	"nameledger.dev/nameledger/internal/cryptoutil"
	"nameledger.dev/nameledger/internal/locker"
)

// Verdict is the outcome of classify (§4.3).
type Verdict int

const (
	Good Verdict = iota
	Bad
	Future
	Twin
	Fork
)

func (v Verdict) String() string {
	switch v {
	case Good:
		return "Good"
	case Bad:
		return "Bad"
	case Future:
		return "Future"
	case Twin:
		return "Twin"
	case Fork:
		return "Fork"
	default:
		return "Unknown"
	}
}

// ChainView is the read surface classify needs from the chain store.
type ChainView interface {
	locker.ChainView
	Height() (uint64, error)
	LastBlock() (*block.Block, error)
	LastFullBlock(filterPubKey []byte) (*block.Block, error)
	IsIDAvailable(identity []byte, pubKey []byte, isZone bool) (bool, error)
	IsIDInBlockchain(identity []byte, isZone bool) (bool, error)
	GetZoneDifficulty(zone string) (uint32, error)
	GetOption(name string) (string, error)
}

func isZoneBlock(cand *block.Block) bool {
	return cand.Transaction != nil && cand.Transaction.Class == block.ClassZone
}

func isDomainBlock(cand *block.Block) bool {
	return cand.Transaction != nil && cand.Transaction.Class == block.ClassDomain
}

// requiredDifficulty implements §4.3 step 3's exhaustive case table.
func requiredDifficulty(chain ChainView, cand *block.Block) uint32 {
	switch {
	case !cand.IsFull() && cand.Index == 1:
		return chainconst.ZoneDifficulty
	case !cand.IsFull():
		return chainconst.LockerDifficulty
	case isZoneBlock(cand):
		return chainconst.ZoneDifficulty
	case isDomainBlock(cand):
		rec, err := block.DecodeDomainRecord(cand.Transaction.Data)
		if err != nil {
			return ^uint32(0)
		}
		diff, err := chain.GetZoneDifficulty(rec.Zone)
		if err != nil {
			return ^uint32(0)
		}
		return diff
	default:
		return ^uint32(0)
	}
}

// Classify runs the ordered rule sequence of §4.3 and returns the first
// failing clause's verdict, or Good if every clause passes.
func Classify(cand *block.Block, chain ChainView, now int64) Verdict {
	// 1. future skew
	if cand.Timestamp > now+chainconst.MaxFutureSkewSeconds {
		return Bad
	}

	// 2. key strength
	if !cryptoutil.KeyIsStrong(cand.PubKey, chainconst.KeystoreDifficulty) {
		return Bad
	}

	// 3. required difficulty
	required := requiredDifficulty(chain, cand)
	if cand.Difficulty < required {
		return Bad
	}

	// 4. proof of work
	if cryptoutil.LeadingZeroBits(cand.Hash) < cand.Difficulty {
		return Bad
	}

	// 5. content hash
	if !equalBytes(cand.ContentHash(), cand.Hash) {
		return Bad
	}

	// 6. signature
	if !cand.VerifySignature() {
		return Bad
	}

	// 7. identity admission (only for full blocks)
	if cand.IsFull() {
		tx := cand.Transaction
		isZone := tx.Class == block.ClassZone
		available, err := chain.IsIDAvailable(tx.Identity, cand.PubKey, isZone)
		if err != nil || !available {
			return Bad
		}

		alreadyOnChain, err := chain.IsIDInBlockchain(tx.Identity, isZone)
		if err != nil {
			return Bad
		}
		if !alreadyOnChain {
			last, err := chain.LastFullBlock(cand.PubKey)
			if err == nil && last != nil {
				if cand.Timestamp < last.Timestamp+chainconst.NewDomainsInterval {
					return Bad
				}
			}
		}
	}

	// 8. positional check
	height, err := chain.Height()
	if err != nil {
		return Bad
	}
	if height == 0 {
		if !cand.IsGenesis() {
			return Bad
		}
		origin, err := chain.GetOption("origin")
		if err != nil {
			return Bad
		}
		if origin != "" && hexEncode(cand.Hash) != origin {
			return Bad
		}
		return Good
	}

	last, err := chain.LastBlock()
	if err != nil {
		return Bad
	}

	if cand.Timestamp < last.Timestamp && cand.Index > last.Index {
		return Bad
	}
	if cand.Index > last.Index+1 {
		return Future
	}

	if cand.Index >= chainconst.LockerBlockStart {
		if v, applies := classifyLockerWindow(cand, chain, last, height); applies {
			return v
		}
	}

	if cand.Index <= last.Index {
		stored, err := chain.GetBlock(cand.Index)
		if err != nil || stored == nil {
			return Fork
		}
		if equalBytes(stored.Hash, cand.Hash) {
			return Twin
		}
		return Fork
	}

	return Good
}

// classifyLockerWindow implements the locker sub-protocol branch inside
// §4.3 step 8 (§4.4 "when the rule applies"). It only ever produces a
// verdict on failure (Bad); a passing signer check falls through
// (applies=false) to the ordinary Twin/Fork/Good path below, matching the
// original (chain.rs) which returns Bad from inside this branch but
// otherwise falls through to the index <= last_block.index check. Returning
// Good here instead would let a re-presented or competing same-height
// locker block bypass Twin/Fork detection and reach AddBlock, colliding on
// an existing primary key.
func classifyLockerWindow(cand *block.Block, chain ChainView, last *block.Block, height uint64) (Verdict, bool) {
	f, err := chain.LastFullBlock(nil)
	if err != nil || f == nil {
		return Good, false
	}
	k := height - f.Index

	switch {
	case k < chainconst.LockerBlockSigns:
		if cand.IsFull() {
			return Bad, true
		}
		ok, err := locker.CheckBlockForSigning(chain, cand, f)
		if err != nil || !ok {
			return Bad, true
		}
		return Good, false

	case k < uint64(chainconst.LockerBlockLockers):
		if !cand.IsFull() {
			ok, err := locker.CheckBlockForSigning(chain, cand, f)
			if err != nil || !ok {
				return Bad, true
			}
			return Good, false
		}
		return Good, false

	default:
		return Good, false
	}
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

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
