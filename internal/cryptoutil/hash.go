// Package cryptoutil implements the single fixed hash and signature scheme
// (§4.1) shared by content hashing, identity hashing and key-strength
// measurement: SHA-256 for H, secp256k1/ECDSA for sign and verify. Grounded
// on github.com/decred/dcrd/dcrec/secp256k1/v4, the curve implementation
// carried by the rest of the retrieval pack (AKJUS-bsc-erigon/go.mod), in
// place of the teacher's ad hoc crypto/ecdsa-over-P256 calls.
package cryptoutil

import "crypto/sha256"

// H is the chain's single fixed 256-bit hash function. Every other hash in
// the system (content hash, identity hash, key-strength test) is built on
// top of it so that a single primitive governs all of them, per §4.1.
func H(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// LeadingZeroBits counts the contiguous high-order zero bits of b.
func LeadingZeroBits(b []byte) uint32 {
	var count uint32
	for _, byt := range b {
		if byt == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if byt&mask != 0 {
				return count
			}
			count++
		}
		return count
	}
	return count
}

// KeyIsStrong reports whether pubKey's hash carries at least
// keystoreDifficulty leading zero bits (§4.1). The difficulty is passed in
// rather than imported from chainconst so this package has no dependency on
// protocol policy, only on the primitive.
func KeyIsStrong(pubKey []byte, keystoreDifficulty uint32) bool {
	return LeadingZeroBits(H(pubKey)) >= keystoreDifficulty
}

// Identity computes H(name ++ salt), the salted identity hash used for both
// zone and domain transactions (§3). Domains pass an empty salt; zones pass
// chainconst.ZoneIdentitySalt.
func Identity(name string, salt string) []byte {
	return H([]byte(name), []byte(salt))
}
