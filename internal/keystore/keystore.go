// Package keystore implements key-file persistence and the cancellable
// key-strength mining loop (§10.4 "Key-strength mining loop"). Grounded on
// the teacher's internal/wallet stub (a package-doc-only placeholder naming
// "key generation, address management ... signing" as wallet concerns) and
// on the original's Keystore::new(), which loops minting keypairs until one
// passes key_is_strong.
package keystore

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/cryptoutil"
	"nameledger.dev/nameledger/internal/events"
	"nameledger.dev/nameledger/internal/nameerrors"
)

const filePerm = 0o600

// Load reads a raw 32-byte secp256k1 private scalar from path and
// reconstructs the keypair.
func Load(path string) (*cryptoutil.KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %q: %w", path, err)
	}
	kp, err := cryptoutil.KeyPairFromPrivateBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode key file %q: %w", path, err)
	}
	return kp, nil
}

// Save persists kp's raw private scalar to path, creating or truncating it
// with owner-only permissions.
func Save(path string, kp *cryptoutil.KeyPair) error {
	raw := kp.Private.Serialize()
	if err := os.WriteFile(path, raw, filePerm); err != nil {
		return fmt.Errorf("write key file %q: %w", path, err)
	}
	return nil
}

// LoadOrGenerate loads the keypair at path if it exists; otherwise it mines
// a fresh strong keypair (publishing the §6 KeyGenerator* events on bus),
// saves it to path, and returns it.
func LoadOrGenerate(ctx context.Context, path string, difficulty uint32, bus *events.Bus, log *zap.Logger) (*cryptoutil.KeyPair, error) {
	if _, err := os.Stat(path); err == nil {
		kp, err := Load(path)
		if err != nil {
			return nil, err
		}
		bus.Publish(events.Event{Kind: events.KeyLoaded, Payload: events.KeyEventPayload{
			Path: path, Public: kp.Public, Hash: cryptoutil.H(kp.Public),
		}})
		return kp, nil
	}

	kp, err := Generate(ctx, difficulty, bus, log)
	if err != nil {
		return nil, err
	}
	if err := Save(path, kp); err != nil {
		return nil, err
	}
	bus.Publish(events.Event{Kind: events.KeySaved, Payload: events.KeyEventPayload{
		Path: path, Public: kp.Public, Hash: cryptoutil.H(kp.Public),
	}})
	return kp, nil
}

// Generate mints keypairs until one satisfies key_is_strong at difficulty,
// or ctx is cancelled. It publishes KeyGeneratorStarted before the loop,
// KeyCreated on success, and KeyGeneratorStopped in all cases.
func Generate(ctx context.Context, difficulty uint32, bus *events.Bus, log *zap.Logger) (*cryptoutil.KeyPair, error) {
	bus.Publish(events.Event{Kind: events.KeyGeneratorStarted})
	defer bus.Publish(events.Event{Kind: events.KeyGeneratorStopped})

	var attempts int
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		kp, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate candidate keypair: %w", err)
		}
		attempts++
		if cryptoutil.KeyIsStrong(kp.Public, difficulty) {
			log.Info("mined a strong key", zap.Int("attempts", attempts), zap.Uint32("difficulty", difficulty))
			bus.Publish(events.Event{Kind: events.KeyCreated, Payload: events.KeyEventPayload{
				Public: kp.Public, Hash: cryptoutil.H(kp.Public),
			}})
			return kp, nil
		}

		if attempts%200000 == 0 {
			log.Debug("key generator still searching", zap.Int("attempts", attempts))
		}
	}
}

// GenerateWithTimeout is a convenience wrapper for callers that want a
// bounded search rather than an open-ended one. On failure the returned
// error wraps both ErrKeyNotStrong and the context error.
func GenerateWithTimeout(timeout time.Duration, difficulty uint32, bus *events.Bus, log *zap.Logger) (*cryptoutil.KeyPair, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	kp, err := Generate(ctx, difficulty, bus, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", nameerrors.ErrKeyNotStrong, err)
	}
	return kp, nil
}
