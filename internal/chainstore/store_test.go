package chainstore_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/chainconst"
	"nameledger.dev/nameledger/internal/chainstore"
	"nameledger.dev/nameledger/internal/cryptoutil"
)

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func openTestStore(t *testing.T) *chainstore.Store {
	t.Helper()
	s, err := chainstore.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func signedGenesis(t *testing.T, kp *cryptoutil.KeyPair, tx *block.Transaction) *block.Block {
	t.Helper()
	b := &block.Block{
		Index:       1,
		Timestamp:   1_700_000_000,
		Version:     1,
		Difficulty:  1,
		PubKey:      kp.Public,
		Transaction: tx,
	}
	b.Sign(kp)
	return b
}

func TestHeightAndLastHashOnEmptyStore(t *testing.T) {
	s := openTestStore(t)
	height, err := s.Height()
	require.NoError(t, err)
	require.Zero(t, height)

	hash, err := s.LastHash()
	require.NoError(t, err)
	require.Empty(t, hash)
}

func TestAddBlockPersistsOriginOnGenesis(t *testing.T) {
	s := openTestStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	genesis := signedGenesis(t, kp, nil)
	require.NoError(t, s.AddBlock(genesis))

	height, err := s.Height()
	require.NoError(t, err)
	require.EqualValues(t, 1, height)

	origin, err := s.GetOption("origin")
	require.NoError(t, err)
	require.Equal(t, hexEncode(genesis.Hash), origin)
}

func TestAddBlockAndGetBlockRoundTrip(t *testing.T) {
	s := openTestStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	genesis := signedGenesis(t, kp, nil)
	require.NoError(t, s.AddBlock(genesis))

	got, err := s.GetBlock(1)
	require.NoError(t, err)
	require.Equal(t, genesis.Hash, got.Hash)
	require.Equal(t, genesis.PubKey, got.PubKey)
	require.False(t, got.IsFull())
}

func TestZoneCommitmentIsVisibleInGetZones(t *testing.T) {
	s := openTestStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	tx := &block.Transaction{
		Identity:     cryptoutil.Identity("ai", chainconst.ZoneIdentitySalt),
		Confirmation: []byte("ai"),
		Class:        block.ClassZone,
		Data:         block.EncodeZoneRecord(&block.ZoneRecord{Name: "ai", Difficulty: 20}),
		PubKey:       kp.Public,
	}
	genesis := signedGenesis(t, kp, tx)
	require.NoError(t, s.AddBlock(genesis))

	zones, err := s.GetZones()
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.Equal(t, "ai", zones[0].Name)
	require.EqualValues(t, 20, zones[0].Difficulty)

	diff, err := s.GetZoneDifficulty("ai")
	require.NoError(t, err)
	require.EqualValues(t, 20, diff)

	unknown, err := s.GetZoneDifficulty("nope")
	require.NoError(t, err)
	require.Equal(t, ^uint32(0), unknown)

	inChain, err := s.IsZoneInBlockchain("ai")
	require.NoError(t, err)
	require.True(t, inChain)
}

func TestIsIDAvailable(t *testing.T) {
	s := openTestStore(t)
	kpA, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	kpB, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	identity := cryptoutil.Identity("ai", "zone-salt")
	available, err := s.IsIDAvailable(identity, kpA.Public, true)
	require.NoError(t, err)
	require.True(t, available)

	tx := &block.Transaction{
		Identity:     identity,
		Confirmation: []byte("ai"),
		Class:        block.ClassZone,
		Data:         block.EncodeZoneRecord(&block.ZoneRecord{Name: "ai", Difficulty: 20}),
		PubKey:       kpA.Public,
	}
	genesis := signedGenesis(t, kpA, tx)
	require.NoError(t, s.AddBlock(genesis))

	available, err = s.IsIDAvailable(identity, kpA.Public, true)
	require.NoError(t, err)
	require.True(t, available, "same owner re-claiming is available")

	available, err = s.IsIDAvailable(identity, kpB.Public, true)
	require.NoError(t, err)
	require.False(t, available, "different key must not see identity as available")
}

func TestReplaceBlockPurgesOldDerivedRow(t *testing.T) {
	s := openTestStore(t)
	kpOld, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	kpNew, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	oldTx := &block.Transaction{
		Identity:     cryptoutil.Identity("ai", chainconst.ZoneIdentitySalt),
		Confirmation: []byte("ai"),
		Class:        block.ClassZone,
		Data:         block.EncodeZoneRecord(&block.ZoneRecord{Name: "ai", Difficulty: 20}),
		PubKey:       kpOld.Public,
	}
	oldGenesis := signedGenesis(t, kpOld, oldTx)
	require.NoError(t, s.AddBlock(oldGenesis))

	inChain, err := s.IsZoneInBlockchain("ai")
	require.NoError(t, err)
	require.True(t, inChain)

	newTx := &block.Transaction{
		Identity:     cryptoutil.Identity("ai", chainconst.ZoneIdentitySalt),
		Confirmation: []byte("ai"),
		Class:        block.ClassZone,
		Data:         block.EncodeZoneRecord(&block.ZoneRecord{Name: "ai", Difficulty: 24}),
		PubKey:       kpNew.Public,
	}
	newGenesis := &block.Block{
		Index:       1,
		Timestamp:   1_700_000_001,
		Version:     1,
		Difficulty:  1,
		Random:      1,
		PubKey:      kpNew.Public,
		Transaction: newTx,
	}
	newGenesis.Sign(kpNew)

	require.NoError(t, s.ReplaceBlock(1, newGenesis))

	zones, err := s.GetZones()
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.EqualValues(t, 24, zones[0].Difficulty)

	diff, err := s.GetZoneDifficulty("ai")
	require.NoError(t, err)
	require.EqualValues(t, 24, diff)
}

func TestNextAllowedBlockWithoutFullBlockIsHeightPlusOne(t *testing.T) {
	s := openTestStore(t)
	next, err := s.NextAllowedBlock()
	require.NoError(t, err)
	require.EqualValues(t, 1, next)

	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	genesis := signedGenesis(t, kp, nil)
	require.NoError(t, s.AddBlock(genesis))

	next, err = s.NextAllowedBlock()
	require.NoError(t, err)
	require.EqualValues(t, 2, next)
}

func TestGetDomainTransactionReturnsNilWhenExpired(t *testing.T) {
	s := openTestStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	tx := &block.Transaction{
		Identity:     cryptoutil.Identity("bob.ai", ""),
		Confirmation: []byte("bob.ai"),
		Class:        block.ClassDomain,
		Data:         block.EncodeDomainRecord(&block.DomainRecord{Zone: "ai", Records: map[string]string{"A": "203.0.113.9"}}),
		PubKey:       kp.Public,
	}
	b := &block.Block{
		Index:       1,
		Timestamp:   1_700_000_000,
		Version:     1,
		Difficulty:  1,
		PubKey:      kp.Public,
		Transaction: tx,
	}
	b.Sign(kp)
	require.NoError(t, s.AddBlock(b))

	fresh, err := s.GetDomainTransaction("bob.ai", 1_700_000_100)
	require.NoError(t, err)
	require.NotNil(t, fresh)

	expired, err := s.GetDomainTransaction("bob.ai", 1_700_000_000+365*24*3600+1)
	require.NoError(t, err)
	require.Nil(t, expired)
}
