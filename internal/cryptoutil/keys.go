package cryptoutil

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// KeyPair bundles a secp256k1 private key with its serialized compressed
// public key, the form persisted by the keystore and carried on block and
// transaction headers.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  []byte // compressed, 33 bytes
}

// GenerateKeyPair creates a fresh random keypair. It does not check
// key-strength; callers that need a strong key should loop with
// KeyIsStrong, as internal/keystore.Generate does.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	return &KeyPair{
		Private: priv,
		Public:  priv.PubKey().SerializeCompressed(),
	}, nil
}

// KeyPairFromPrivateBytes reconstructs a KeyPair from a raw 32-byte private
// scalar, as loaded from the key file by internal/keystore.
func KeyPairFromPrivateBytes(raw []byte) (*KeyPair, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return &KeyPair{
		Private: priv,
		Public:  priv.PubKey().SerializeCompressed(),
	}, nil
}

// Sign signs data (normally the bytes produced by block.BytesForSigning or
// a transaction's canonical payload) and returns a DER-encoded signature.
func Sign(priv *secp256k1.PrivateKey, data []byte) []byte {
	digest := H(data)
	sig := ecdsa.Sign(priv, digest)
	return sig.Serialize()
}

// Verify checks a DER-encoded signature against data using pubKey
// (compressed or uncompressed secp256k1 encoding).
func Verify(pubKeyBytes, data, signature []byte) bool {
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	digest := H(data)
	return sig.Verify(digest, pubKey)
}
