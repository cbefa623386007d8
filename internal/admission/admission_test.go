package admission_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/admission"
	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/chainstore"
	"nameledger.dev/nameledger/internal/cryptoutil"
)

func TestCheckDomainSyntax(t *testing.T) {
	cases := []struct {
		name      string
		allowDots bool
		want      bool
	}{
		{"bob", true, true},
		{"bob.ai", true, true},
		{"", true, false},
		{".bob", true, false},
		{"bob.", true, false},
		{"-bob", true, false},
		{"bob-", true, false},
		{"bo..b", true, false},
		{"bo--b", true, false},
		{"BOB", true, false},
		{"bob_ai", true, false},
		{"bob.ai", false, false},
	}
	for _, c := range cases {
		got := admission.CheckDomain(c.name, c.allowDots)
		require.Equalf(t, c.want, got, "CheckDomain(%q, %v)", c.name, c.allowDots)
	}
}

func openStore(t *testing.T) *chainstore.Store {
	t.Helper()
	s, err := chainstore.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addZone(t *testing.T, store *chainstore.Store, name string, kp *cryptoutil.KeyPair) {
	t.Helper()
	tx := &block.Transaction{
		Identity:     cryptoutil.Identity(name, "nameledger-zone-salt-v1"),
		Confirmation: []byte(name),
		Class:        block.ClassZone,
		Data:         block.EncodeZoneRecord(&block.ZoneRecord{Name: name, Difficulty: 10}),
		PubKey:       kp.Public,
	}
	b := &block.Block{Index: 1, Timestamp: 1_700_000_000, PubKey: kp.Public, Transaction: tx}
	b.Sign(kp)
	require.NoError(t, store.AddBlock(b))
}

func TestIsDomainAvailableRejectsThirdLevelName(t *testing.T) {
	store := openStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	ok, err := admission.IsDomainAvailable(store, "a.b.ai", kp.Public)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsDomainAvailableRequiresKnownParentZone(t *testing.T) {
	store := openStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	ok, err := admission.IsDomainAvailable(store, "bob.unknown", kp.Public)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsDomainAvailableAcceptsKnownZone(t *testing.T) {
	store := openStore(t)
	zoneOwner, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	addZone(t, store, "ai", zoneOwner)

	claimer, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	ok, err := admission.IsDomainAvailable(store, "bob.ai", claimer.Public)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCanMineDomainWrongName(t *testing.T) {
	store := openStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	v, err := admission.CanMineDomain(store, "BAD_NAME", kp.Public, 1_700_000_000)
	require.NoError(t, err)
	require.Equal(t, admission.WrongName, v.Kind)
}

func TestCanMineDomainWrongZone(t *testing.T) {
	store := openStore(t)
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	v, err := admission.CanMineDomain(store, "bob.unknown", kp.Public, 1_700_000_000)
	require.NoError(t, err)
	require.Equal(t, admission.WrongZone, v.Kind)
}

func TestCanMineDomainCooldown(t *testing.T) {
	store := openStore(t)
	zoneOwner, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	addZone(t, store, "ai", zoneOwner)

	claimer, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	domainTx := &block.Transaction{
		Identity:     cryptoutil.Identity("bob.ai", ""),
		Confirmation: []byte("bob.ai"),
		Class:        block.ClassDomain,
		Data:         block.EncodeDomainRecord(&block.DomainRecord{Zone: "ai", Records: map[string]string{"A": "203.0.113.9"}}),
		PubKey:       claimer.Public,
	}
	b := &block.Block{Index: 2, Timestamp: 1_700_000_500, PrevBlockHash: []byte{1}, PubKey: claimer.Public, Transaction: domainTx}
	b.Sign(claimer)
	require.NoError(t, store.AddBlock(b))

	v, err := admission.CanMineDomain(store, "alice.ai", claimer.Public, 1_700_000_600)
	require.NoError(t, err)
	require.Equal(t, admission.Cooldown, v.Kind)
	require.Positive(t, v.SecondsRemaining)

	v, err = admission.CanMineDomain(store, "bob.ai", claimer.Public, 1_700_000_600)
	require.NoError(t, err)
	require.Equal(t, admission.Fine, v.Kind, "re-registering an already-owned identity is exempt from cool-down")
}
