package chainstore

// schema is the relational layout from the external-interfaces contract:
// blocks carries every chain-store row, domains/zones are derived
// projections populated only for full blocks, options holds {origin,
// version} and anything else the driver chooses to persist there.
const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	id              INTEGER PRIMARY KEY,
	timestamp       INTEGER NOT NULL,
	version         INTEGER NOT NULL,
	difficulty      INTEGER NOT NULL,
	random          INTEGER NOT NULL,
	nonce           INTEGER NOT NULL,
	"transaction"   TEXT NOT NULL DEFAULT '',
	prev_block_hash BLOB NOT NULL,
	hash            BLOB NOT NULL,
	pub_key         BLOB NOT NULL,
	signature       BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS domains (
	id           INTEGER PRIMARY KEY,
	timestamp    INTEGER NOT NULL,
	identity     BLOB NOT NULL,
	confirmation BLOB NOT NULL,
	data         TEXT NOT NULL,
	pub_key      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_domains_identity ON domains(identity);

CREATE TABLE IF NOT EXISTS zones (
	id           INTEGER PRIMARY KEY,
	timestamp    INTEGER NOT NULL,
	identity     BLOB NOT NULL,
	confirmation BLOB NOT NULL,
	data         TEXT NOT NULL,
	pub_key      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_zones_identity ON zones(identity);

CREATE TABLE IF NOT EXISTS options (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
