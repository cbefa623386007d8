// Package chainstore is the relational chain store (§4.2): an append-only
// blocks table plus the domains/zones derived projections and an options
// table for {origin, version}. It is grounded on the teacher's
// internal/blockchain package (in-memory slice + map, a single mutex, a
// flat sentinel-error block) but backed by database/sql over
// modernc.org/sqlite rather than an in-process slice, so restart survives
// and the SQL layer — not the caller — owns serialization of concurrent
// writers.
package chainstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/block"
	"nameledger.dev/nameledger/internal/chainconst"
	"nameledger.dev/nameledger/internal/cryptoutil"
	"nameledger.dev/nameledger/internal/nameerrors"
)

// ZoneData is the public view of a confirmed zone transaction returned by
// GetZones: just enough to drive a listing UI or the admission helpers.
type ZoneData struct {
	Name       string
	Difficulty uint32
	PubKey     []byte
}

// Store is the chain store. All access serializes through mu: the SQL
// connection itself is single-threaded (§5 "Resource policy"), and
// zoneCache is interior-mutable state shared across readers.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger

	// zoneCache memoizes confirmed zone names for IsZoneInBlockchain (§4.2
	// "process-lifetime memoization"). Per the open question in §9, the
	// source never invalidates this cache on replace_block; this store
	// takes the design note's suggested fix and clears it, recorded as a
	// resolved Open Question in DESIGN.md.
	zoneCache map[string]bool
}

// Open creates (if necessary) and opens the sqlite-backed store at path.
// path may be ":memory:" for tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chainstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("chainstore: apply schema: %w", err)
	}

	s := &Store{
		db:        db,
		log:       log,
		zoneCache: make(map[string]bool),
	}
	return s, nil
}

// Close releases the underlying SQL connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Height returns the index of the last accepted block, 0 if the chain is
// empty.
func (s *Store) Height() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heightLocked()
}

func (s *Store) heightLocked() (uint64, error) {
	var height sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(id) FROM blocks`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("chainstore: height: %w", err)
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}

func scanBlockRow(scan func(dest ...any) error) (*block.Block, error) {
	var (
		index, ts, nonce                      int64
		version, difficulty, random           uint32
		txText                                string
		prevHash, hash, pubKey, signature     []byte
	)
	if err := scan(&index, &ts, &version, &difficulty, &random, &nonce, &txText, &prevHash, &hash, &pubKey, &signature); err != nil {
		if err == sql.ErrNoRows {
			return nil, nameerrors.ErrBlockNotFound
		}
		return nil, fmt.Errorf("chainstore: scan block: %w", err)
	}

	b := &block.Block{
		Index:         uint64(index),
		Timestamp:     ts,
		Version:       version,
		Difficulty:    difficulty,
		Random:        random,
		Nonce:         uint64(nonce),
		PrevBlockHash: prevHash,
		Hash:          hash,
		PubKey:        pubKey,
		Signature:     signature,
	}
	if txText != "" {
		tx, err := block.DecodeTransactionText(txText)
		if err != nil {
			return nil, fmt.Errorf("chainstore: decode stored transaction at height %d: %w", index, err)
		}
		b.Transaction = tx
	}
	return b, nil
}

const blockColumns = `id, timestamp, version, difficulty, random, nonce, "transaction", prev_block_hash, hash, pub_key, signature`

// GetBlock returns the block at index, or ErrBlockNotFound.
func (s *Store) GetBlock(index uint64) (*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBlockLocked(index)
}

func (s *Store) getBlockLocked(index uint64) (*block.Block, error) {
	row := s.db.QueryRow(`SELECT `+blockColumns+` FROM blocks WHERE id = ?`, index)
	return scanBlockRow(row.Scan)
}

// LastBlock returns the block at the current height, or ErrEmptyChain.
func (s *Store) LastBlock() (*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBlockLocked()
}

func (s *Store) lastBlockLocked() (*block.Block, error) {
	height, err := s.heightLocked()
	if err != nil {
		return nil, err
	}
	if height == 0 {
		return nil, nameerrors.ErrEmptyChain
	}
	return s.getBlockLocked(height)
}

// LastHash returns the hash of the last block, or empty bytes if the
// chain is empty (the hash a genesis block's prev_block_hash must equal).
func (s *Store) LastHash() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.lastBlockLocked()
	if err == nameerrors.ErrEmptyChain {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b.Hash, nil
}

// LastFullBlock returns the highest-index full block, optionally
// restricted to one whose pub_key equals filterPubKey (pass nil for no
// filter). Returns ErrBlockNotFound if none exists.
func (s *Store) LastFullBlock(filterPubKey []byte) (*block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFullBlockLocked(filterPubKey)
}

// LastFullBlockTimestampFor returns the timestamp of pubKey's most
// recent full block, for the admission cool-down check (§4.8). The
// second return is false if pubKey has never mined a full block.
func (s *Store) LastFullBlockTimestampFor(pubKey []byte) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.lastFullBlockLocked(pubKey)
	if err == nameerrors.ErrBlockNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return b.Timestamp, true, nil
}

func txTextOrEmpty(b *block.Block) string {
	if b.Transaction == nil {
		return ""
	}
	return block.EncodeTransactionText(b.Transaction)
}

// AddBlock appends b at its own index. It never validates — the caller
// must classify the candidate first (§4.2). Only blocks carrying a
// transaction insert a row into domains or zones.
func (s *Store) AddBlock(b *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("chainstore: begin add_block: %w", err)
	}
	defer tx.Rollback()

	if err := insertBlockRow(tx, b); err != nil {
		return err
	}
	if b.Transaction != nil {
		if err := insertDerivedRow(tx, b); err != nil {
			return err
		}
	}
	if b.Index == 1 {
		if err := setOptionTx(tx, "origin", fmt.Sprintf("%x", b.Hash)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertBlockRow(tx *sql.Tx, b *block.Block) error {
	_, err := tx.Exec(
		`INSERT INTO blocks (id, timestamp, version, difficulty, random, nonce, "transaction", prev_block_hash, hash, pub_key, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Index, b.Timestamp, b.Version, b.Difficulty, b.Random, b.Nonce, txTextOrEmpty(b), b.PrevBlockHash, b.Hash, b.PubKey, b.Signature,
	)
	if err != nil {
		return fmt.Errorf("chainstore: insert block %d: %w", b.Index, err)
	}
	return nil
}

func insertDerivedRow(tx *sql.Tx, b *block.Block) error {
	table := "domains"
	if b.Transaction.Class == block.ClassZone {
		table = "zones"
	}
	_, err := tx.Exec(
		fmt.Sprintf(`INSERT INTO %s (id, timestamp, identity, confirmation, data, pub_key) VALUES (?, ?, ?, ?, ?, ?)`, table),
		b.Index, b.Timestamp, b.Transaction.Identity, b.Transaction.Confirmation, b.Transaction.Data, b.Transaction.PubKey,
	)
	if err != nil {
		return fmt.Errorf("chainstore: insert derived row in %s for block %d: %w", table, b.Index, err)
	}
	return nil
}

// ReplaceBlock overwrites the block at index with b, purging the old
// block's derived rows first (§3 "Lifecycle"). Used only when a
// competing fork wins at the same height (Fork verdict).
func (s *Store) ReplaceBlock(index uint64, b *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.getBlockLocked(index)
	if err != nil && err != nameerrors.ErrBlockNotFound {
		return err
	}

	dbtx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("chainstore: begin replace_block: %w", err)
	}
	defer dbtx.Rollback()

	if old != nil {
		if old.Transaction != nil {
			table := "domains"
			if old.Transaction.Class == block.ClassZone {
				table = "zones"
			}
			if _, err := dbtx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), index); err != nil {
				return fmt.Errorf("chainstore: purge derived row for block %d: %w", index, err)
			}
			if table == "zones" {
				if zr, err := block.DecodeZoneRecord(old.Transaction.Data); err == nil {
					delete(s.zoneCache, zr.Name)
				}
			}
		}
		if _, err := dbtx.Exec(`DELETE FROM blocks WHERE id = ?`, index); err != nil {
			return fmt.Errorf("chainstore: delete old block %d: %w", index, err)
		}
	}

	if err := insertBlockRow(dbtx, b); err != nil {
		return err
	}
	if b.Transaction != nil {
		if err := insertDerivedRow(dbtx, b); err != nil {
			return err
		}
	}
	return dbtx.Commit()
}

// IsIDAvailable reports whether identity is free to be claimed by pubKey:
// true if the latest owner is unset or already equals pubKey (§4.2).
func (s *Store) IsIDAvailable(identity []byte, pubKey []byte, isZone bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, err := s.latestOwnerLocked(identity, isZone)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return true, nil
	}
	return equalBytes(owner, pubKey), nil
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

func (s *Store) latestOwnerLocked(identity []byte, isZone bool) ([]byte, error) {
	table := "domains"
	if isZone {
		table = "zones"
	}
	var pubKey []byte
	err := s.db.QueryRow(
		fmt.Sprintf(`SELECT pub_key FROM %s WHERE identity = ? ORDER BY id DESC LIMIT 1`, table),
		identity,
	).Scan(&pubKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chainstore: latest owner of %x in %s: %w", identity, table, err)
	}
	return pubKey, nil
}

// IsIDInBlockchain reports whether identity has ever been committed.
func (s *Store) IsIDInBlockchain(identity []byte, isZone bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, err := s.latestOwnerLocked(identity, isZone)
	if err != nil {
		return false, err
	}
	return owner != nil, nil
}

// IsZoneInBlockchain reports whether name is a confirmed zone, consulting
// (and populating) the process-lifetime memoization cache described in
// §4.2.
func (s *Store) IsZoneInBlockchain(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if confirmed, ok := s.zoneCache[name]; ok {
		return confirmed, nil
	}

	identity := cryptoutil.Identity(name, chainconst.ZoneIdentitySalt)
	owner, err := s.latestOwnerLocked(identity, true)
	if err != nil {
		return false, err
	}
	confirmed := owner != nil
	if confirmed {
		s.zoneCache[name] = true
	}
	return confirmed, nil
}

// GetDomainTransaction returns the latest non-expired commitment whose
// identity matches name, or nil if there is none or it has expired past
// chainconst.DomainLifetime (§4.2).
func (s *Store) GetDomainTransaction(name string, nowUnix int64) (*block.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity := cryptoutil.Identity(name, "")
	var ts int64
	var confirmation, data, pubKey []byte
	err := s.db.QueryRow(
		`SELECT timestamp, confirmation, data, pub_key FROM domains WHERE identity = ? ORDER BY id DESC LIMIT 1`,
		identity,
	).Scan(&ts, &confirmation, &data, &pubKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chainstore: get_domain_transaction(%s): %w", name, err)
	}
	if nowUnix-ts > chainconst.DomainLifetime {
		return nil, nil
	}
	return &block.Transaction{
		Identity:     identity,
		Confirmation: confirmation,
		Class:        block.ClassDomain,
		Data:         string(data),
		PubKey:       pubKey,
	}, nil
}

// GetZones returns every confirmed zone's name, difficulty and owning
// public key.
func (s *Store) GetZones() ([]ZoneData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT data, pub_key FROM zones z WHERE id = (SELECT MAX(id) FROM zones z2 WHERE z2.identity = z.identity)`)
	if err != nil {
		return nil, fmt.Errorf("chainstore: get_zones: %w", err)
	}
	defer rows.Close()

	var out []ZoneData
	for rows.Next() {
		var data string
		var pubKey []byte
		if err := rows.Scan(&data, &pubKey); err != nil {
			return nil, fmt.Errorf("chainstore: scan zone row: %w", err)
		}
		rec, err := block.DecodeZoneRecord(data)
		if err != nil {
			return nil, fmt.Errorf("chainstore: decode zone record: %w", err)
		}
		out = append(out, ZoneData{Name: rec.Name, Difficulty: rec.Difficulty, PubKey: pubKey})
	}
	return out, rows.Err()
}

// GetZoneDifficulty returns the required difficulty for domains under
// zone, or math.MaxUint32 if the zone is unknown (effectively
// unmineable, §4.2).
func (s *Store) GetZoneDifficulty(zone string) (uint32, error) {
	zones, err := s.GetZones()
	if err != nil {
		return 0, err
	}
	for _, z := range zones {
		if z.Name == zone {
			return z.Difficulty, nil
		}
	}
	return ^uint32(0), nil
}

// NextAllowedBlock is the smallest index a full block is allowed to
// claim, implementing the locker-gap rule (§4.4).
func (s *Store) NextAllowedBlock() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	height, err := s.heightLocked()
	if err != nil {
		return 0, err
	}

	f, err := s.lastFullBlockLocked(nil)
	if err == nameerrors.ErrBlockNotFound {
		return height + 1, nil
	}
	if err != nil {
		return 0, err
	}
	if f.Index < chainconst.LockerBlockStart {
		return height + 1, nil
	}
	base := f.Index
	if height > base {
		base = height
	}
	return base + chainconst.LockerBlockSigns, nil
}

func (s *Store) lastFullBlockLocked(filterPubKey []byte) (*block.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM blocks WHERE "transaction" != '' `
	args := []any{}
	if filterPubKey != nil {
		query += ` AND pub_key = ? `
		args = append(args, filterPubKey)
	}
	query += ` ORDER BY id DESC LIMIT 1`
	row := s.db.QueryRow(query, args...)
	return scanBlockRow(row.Scan)
}

// GetOption reads a value from the options table, or "" if unset.
func (s *Store) GetOption(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM options WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("chainstore: get option %s: %w", name, err)
	}
	return value, nil
}

// SetOption writes a value into the options table.
func (s *Store) SetOption(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setOptionLocked(s.db, name, value)
}

func setOptionLocked(db *sql.DB, name, value string) error {
	_, err := db.Exec(`INSERT INTO options (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("chainstore: set option %s: %w", name, err)
	}
	return nil
}

func setOptionTx(tx *sql.Tx, name, value string) error {
	_, err := tx.Exec(`INSERT INTO options (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("chainstore: set option %s: %w", name, err)
	}
	return nil
}
