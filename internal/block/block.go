// Package block holds the Block and Transaction data model (§3), their
// canonical byte images for hashing and signing, and the canonical text
// encoding of a Transaction persisted into the blocks table's transaction
// column. It replaces the teacher's internal/core package, which modeled
// a UTXO-style block/transaction pair for an unrelated domain; the shape
// of the code — plain structs, explicit byte-builder methods, no
// reflection — is kept, the fields are not.
package block

import (
	"bytes"
	"encoding/binary"

	"nameledger.dev/nameledger/internal/cryptoutil"
	"nameledger.dev/nameledger/internal/nameerrors"
)

// TxClass distinguishes the two transaction kinds a block may carry (§3).
type TxClass string

const (
	ClassZone   TxClass = "zone"
	ClassDomain TxClass = "domain"
)

// Transaction is the opaque-data commitment carried by a full block.
type Transaction struct {
	Identity     []byte  // H(name ++ salt)
	Confirmation []byte  // value such that H(name ++ Confirmation) == Identity
	Class        TxClass // "zone" or "domain"
	Data         string  // canonical text, opaque to the chain except via DecodeZoneRecord/DecodeDomainRecord
	PubKey       []byte  // claimant's public key
}

// Block is the fixed set of fields that together fully determine its hash
// (§3). Transaction is nil for a locker block, present for a full block.
type Block struct {
	Index         uint64
	Timestamp     int64
	Version       uint32
	Difficulty    uint32
	Random        uint32
	Nonce         uint64
	PrevBlockHash []byte
	Hash          []byte
	PubKey        []byte
	Signature     []byte
	Transaction   *Transaction
}

// IsGenesis reports whether b is the first block in the chain.
func (b *Block) IsGenesis() bool {
	return len(b.PrevBlockHash) == 0
}

// IsFull reports whether b carries a transaction, as opposed to being a
// locker block.
func (b *Block) IsFull() bool {
	return b.Transaction != nil
}

func writeLenPrefixed(buf *bytes.Buffer, field []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf.Write(lenBuf[:])
	buf.Write(field)
}

// canonicalPrefix appends every field that precedes hash in §3's field
// order, fixed-width little-endian for integers and length-prefixed for
// opaque byte fields.
func (b *Block) canonicalPrefix(buf *bytes.Buffer) {
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], b.Index)
	buf.Write(u64[:])

	binary.LittleEndian.PutUint64(u64[:], uint64(b.Timestamp))
	buf.Write(u64[:])

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], b.Version)
	buf.Write(u32[:])

	binary.LittleEndian.PutUint32(u32[:], b.Difficulty)
	buf.Write(u32[:])

	binary.LittleEndian.PutUint32(u32[:], b.Random)
	buf.Write(u32[:])

	binary.LittleEndian.PutUint64(u64[:], b.Nonce)
	buf.Write(u64[:])

	writeLenPrefixed(buf, b.PrevBlockHash)
}

// BytesForHashing is the byte image hashed to obtain content_hash(block):
// every field in §3 order excluding hash and signature, plus pub_key, plus
// the transaction's canonical text if present. (hash is derived from this
// image and signature is excluded so sign/verify share the same image,
// per §4.1.)
func (b *Block) BytesForHashing() []byte {
	var buf bytes.Buffer
	b.canonicalPrefix(&buf)
	writeLenPrefixed(&buf, b.PubKey)
	if b.Transaction != nil {
		writeLenPrefixed(&buf, []byte(EncodeTransactionText(b.Transaction)))
	} else {
		writeLenPrefixed(&buf, nil)
	}
	return buf.Bytes()
}

// BytesForSigning is identical to BytesForHashing: §4.1 specifies sign and
// verify use "the same byte image as content_hash, with signature also
// excluded" — signature was never part of BytesForHashing to begin with,
// so the two images coincide.
func (b *Block) BytesForSigning() []byte {
	return b.BytesForHashing()
}

// ContentHash computes content_hash(b) = H(canonical_serialize(b without
// hash and signature)) (§4.1).
func (b *Block) ContentHash() []byte {
	return cryptoutil.H(b.BytesForHashing())
}

// Sign sets b.Hash and b.Signature from priv, in that order: the hash is
// content-derived and does not depend on the signature, but both are
// computed over the same pre-signature byte image.
func (b *Block) Sign(priv *cryptoutil.KeyPair) {
	b.Hash = b.ContentHash()
	b.Signature = cryptoutil.Sign(priv.Private, b.BytesForSigning())
}

// VerifySignature checks b.Signature against b.PubKey over the
// pre-signature byte image (§3 invariant 4).
func (b *Block) VerifySignature() bool {
	return cryptoutil.Verify(b.PubKey, b.BytesForSigning(), b.Signature)
}

// EncodeBinary serializes the full on-chain wire form of b (used for
// network gossip / P2P framing, not the SQL row form — see
// EncodeTransactionText for the column actually persisted in blocks).
func (b *Block) EncodeBinary() []byte {
	var buf bytes.Buffer
	b.canonicalPrefix(&buf)
	writeLenPrefixed(&buf, b.Hash)
	writeLenPrefixed(&buf, b.PubKey)
	writeLenPrefixed(&buf, b.Signature)
	if b.Transaction != nil {
		writeLenPrefixed(&buf, []byte(EncodeTransactionText(b.Transaction)))
	} else {
		writeLenPrefixed(&buf, nil)
	}
	return buf.Bytes()
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, nameerrors.ErrTruncatedBlock
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return nil, nameerrors.ErrTruncatedBlock
	}
	return out, nil
}

// DecodeBinary is the inverse of EncodeBinary.
func DecodeBinary(raw []byte) (*Block, error) {
	r := bytes.NewReader(raw)
	readU64 := func() (uint64, error) {
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return 0, nameerrors.ErrTruncatedBlock
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	}
	readU32 := func() (uint32, error) {
		var b [4]byte
		if _, err := r.Read(b[:]); err != nil {
			return 0, nameerrors.ErrTruncatedBlock
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}

	b := &Block{}
	var err error
	if b.Index, err = readU64(); err != nil {
		return nil, err
	}
	var ts uint64
	if ts, err = readU64(); err != nil {
		return nil, err
	}
	b.Timestamp = int64(ts)
	if b.Version, err = readU32(); err != nil {
		return nil, err
	}
	if b.Difficulty, err = readU32(); err != nil {
		return nil, err
	}
	if b.Random, err = readU32(); err != nil {
		return nil, err
	}
	if b.Nonce, err = readU64(); err != nil {
		return nil, err
	}
	if b.PrevBlockHash, err = readLenPrefixed(r); err != nil {
		return nil, err
	}
	if b.Hash, err = readLenPrefixed(r); err != nil {
		return nil, err
	}
	if b.PubKey, err = readLenPrefixed(r); err != nil {
		return nil, err
	}
	if b.Signature, err = readLenPrefixed(r); err != nil {
		return nil, err
	}
	txText, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}
	if len(txText) > 0 {
		tx, err := DecodeTransactionText(string(txText))
		if err != nil {
			return nil, err
		}
		b.Transaction = tx
	}
	return b, nil
}
