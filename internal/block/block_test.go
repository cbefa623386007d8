package block_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/cryptoutil"
)

func sampleFullBlock(t *testing.T) (*block.Block, *cryptoutil.KeyPair) {
	t.Helper()
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	tx := &block.Transaction{
		Identity:     cryptoutil.Identity("example", ""),
		Confirmation: []byte("secret-confirmation"),
		Class:        block.ClassDomain,
		Data:         block.EncodeDomainRecord(&block.DomainRecord{Zone: "ai", Records: map[string]string{"A": "203.0.113.9"}}),
		PubKey:       kp.Public,
	}
	b := &block.Block{
		Index:         42,
		Timestamp:     1_700_000_000,
		Version:       1,
		Difficulty:    16,
		Random:        7,
		Nonce:         0,
		PrevBlockHash: cryptoutil.H([]byte("prev")),
		PubKey:        kp.Public,
		Transaction:   tx,
	}
	return b, kp
}

func TestBytesForHashingIsDeterministic(t *testing.T) {
	b1, _ := sampleFullBlock(t)
	b2 := *b1
	require.Equal(t, b1.BytesForHashing(), b2.BytesForHashing())
}

func TestBytesForHashingChangesWithNonce(t *testing.T) {
	b, _ := sampleFullBlock(t)
	before := b.BytesForHashing()
	b.Nonce = 99
	after := b.BytesForHashing()
	require.NotEqual(t, before, after)
}

func TestBytesForHashingExcludesHashAndSignature(t *testing.T) {
	b, _ := sampleFullBlock(t)
	before := b.BytesForHashing()
	b.Hash = []byte{0xAA, 0xBB}
	b.Signature = []byte{0xCC, 0xDD}
	require.Equal(t, before, b.BytesForHashing())
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	b, kp := sampleFullBlock(t)
	b.Sign(kp)
	require.True(t, b.VerifySignature())
	require.Equal(t, b.ContentHash(), b.Hash)
}

func TestVerifySignatureFailsOnTamperedHeader(t *testing.T) {
	b, kp := sampleFullBlock(t)
	b.Sign(kp)
	b.Nonce++
	require.False(t, b.VerifySignature())
}

func TestEncodeDecodeBinaryRoundTrip(t *testing.T) {
	b, kp := sampleFullBlock(t)
	b.Sign(kp)

	raw := b.EncodeBinary()
	decoded, err := block.DecodeBinary(raw)
	require.NoError(t, err)

	require.Equal(t, b.Index, decoded.Index)
	require.Equal(t, b.Timestamp, decoded.Timestamp)
	require.Equal(t, b.Hash, decoded.Hash)
	require.Equal(t, b.Signature, decoded.Signature)
	require.Equal(t, b.PubKey, decoded.PubKey)
	require.True(t, decoded.IsFull())
	require.Equal(t, b.Transaction.Data, decoded.Transaction.Data)
	require.Equal(t, b.Transaction.Class, decoded.Transaction.Class)
}

func TestLockerBlockEncodeDecodeRoundTrip(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	b := &block.Block{
		Index:         100,
		Timestamp:     1_700_000_500,
		Version:       1,
		Difficulty:    20,
		PrevBlockHash: cryptoutil.H([]byte("ancestor")),
		PubKey:        kp.Public,
	}
	b.Sign(kp)
	require.False(t, b.IsFull())

	raw := b.EncodeBinary()
	decoded, err := block.DecodeBinary(raw)
	require.NoError(t, err)
	require.False(t, decoded.IsFull())
	require.Nil(t, decoded.Transaction)
}

func TestIsGenesis(t *testing.T) {
	b := &block.Block{Index: 1}
	require.True(t, b.IsGenesis())
	b.PrevBlockHash = []byte{0x01}
	require.False(t, b.IsGenesis())
}
