// Package chainconst holds the named protocol constants shared by the
// chain store, validator, locker committee and miner. Keeping them in one
// leaf package (rather than scattered sentinel literals) means the
// validator's required-difficulty table and the locker window walk read
// from a single source of truth, mirroring validationutils.ProjectEpochStartUnix
// in the teacher repo.
package chainconst

import "time"

// KeystoreDifficulty, ZoneDifficulty and LockerDifficulty are vars rather
// than consts: their production values (24/24/20, matching the system
// this spec was distilled from) make any real proof-of-work search in a
// unit test prohibitively slow, so package-level tests that need a
// classify() run lower them for the duration of the test and restore the
// default via t.Cleanup. Nothing in non-test code ever assigns to them.
var (
	// KeystoreDifficulty is the minimum leading-zero-bit count a miner's
	// public key hash must carry before any block signed with it is
	// accepted (§3 invariant 5, §4.1).
	KeystoreDifficulty uint32 = 24

	// ZoneDifficulty is the required difficulty for genesis, all locker
	// blocks at index 1, and every full block carrying a zone transaction
	// (§4.3 step 3).
	ZoneDifficulty uint32 = 24

	// LockerDifficulty is the required difficulty for locker blocks at
	// index > 1 (§4.3 step 3).
	LockerDifficulty uint32 = 20
)

const (
	// ChainVersion is the protocol version written to options{version} and
	// carried on every block header.
	ChainVersion uint32 = 1

	// LockerBlockStart is the height at which the locker sub-protocol
	// switches on (§4.4).
	LockerBlockStart uint64 = 1

	// LockerBlockSigns is the number of consecutive locker blocks required
	// to cover a full block before a new full block may be mined (§4.4).
	LockerBlockSigns uint64 = 5

	// LockerBlockLockers is the committee size; it must be >= LockerBlockSigns.
	LockerBlockLockers int = 7

	// LockerBlockInterval bounds how far back of a full block the committee
	// walk looks, and bounds the walk itself (§9 "Locker walk termination").
	LockerBlockInterval uint64 = 10000

	// NewDomainsInterval is the cool-down a public key must observe between
	// its first full block and any later full block claiming a brand-new
	// identity (§3 invariant 8).
	NewDomainsInterval int64 = int64(30 * 24 * time.Hour / time.Second)

	// DomainLifetime bounds how long a domain commitment remains resolvable
	// before chainstore.GetDomainTransaction treats it as expired.
	DomainLifetime int64 = int64(365 * 24 * time.Hour / time.Second)

	// MaxFutureSkewSeconds is the greatest amount a candidate block's
	// timestamp may run ahead of the validator's wall clock (§4.3 step 1).
	MaxFutureSkewSeconds int64 = 60

	// ZoneIdentitySalt is appended to a zone name before hashing to obtain
	// its identity, separating the zone and domain identity namespaces
	// (§3: "salt is empty for domains and a fixed constant for zones").
	ZoneIdentitySalt = "nameledger-zone-salt-v1"
)

// LockerWalkBound caps the committee-selection walk (§9 "Locker walk
// termination"): the source's unbounded count++ loop would spin forever on
// a window with fewer than LockerBlockLockers distinct eligible signers —
// which includes every chain shorter than ~LockerBlockLockers blocks, since
// LockerBlockStart switches the sub-protocol on from genesis.
//
// locker.Signers's walk visits index = start + (tail*count) % LockerBlockInterval
// for count = 1, 2, .... That residue sequence's orbit under multiplication
// by tail modulo LockerBlockInterval has length at most LockerBlockInterval,
// so once count has reached LockerBlockInterval every index the walk could
// ever produce has already been tried; further iteration is provably futile.
// Bounding at LockerBlockInterval (rather than its square) is therefore
// enough to guarantee termination as soon as the window is exhausted,
// without scanning the same residues more than once per run.
func LockerWalkBound() uint64 {
	return LockerBlockInterval
}
