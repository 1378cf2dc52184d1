package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS identities (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	type                      TEXT NOT NULL,
	principal                 TEXT NOT NULL,
	principal_hash            BLOB NOT NULL,
	principal_short_hash      INTEGER NOT NULL,
	owned                     INTEGER NOT NULL DEFAULT 0,
	claimed                   INTEGER NOT NULL DEFAULT 0,
	blocked                   INTEGER NOT NULL DEFAULT 0,
	whitelisted               INTEGER NOT NULL DEFAULT 0,
	next_sequence_number      INTEGER NOT NULL DEFAULT 0,
	received_profile_version  INTEGER NOT NULL DEFAULT 0,
	sent_profile_version      INTEGER NOT NULL DEFAULT 0,
	created_at                INTEGER NOT NULL,
	updated_at                INTEGER NOT NULL,
	UNIQUE(type, principal)
);

CREATE INDEX IF NOT EXISTS idx_identities_short_hash
	ON identities(type, principal_short_hash);

CREATE TABLE IF NOT EXISTS devices (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	device_name          TEXT NOT NULL,
	identity_id          INTEGER NOT NULL REFERENCES identities(id),
	max_sequence_number  INTEGER NOT NULL DEFAULT -1,
	UNIQUE(identity_id, device_name)
);

CREATE TABLE IF NOT EXISTS signature_user_keys (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_id  INTEGER NOT NULL REFERENCES identities(id),
	"when"       INTEGER NOT NULL,
	user_key     BLOB NOT NULL,
	UNIQUE(identity_id, "when")
);

CREATE TABLE IF NOT EXISTS encryption_user_keys (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_id  INTEGER NOT NULL REFERENCES identities(id),
	"when"       INTEGER NOT NULL,
	user_key     BLOB NOT NULL,
	UNIQUE(identity_id, "when")
);

CREATE TABLE IF NOT EXISTS outgoing_secrets (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	my_identity_id            INTEGER NOT NULL REFERENCES identities(id),
	other_identity_id         INTEGER NOT NULL REFERENCES identities(id),
	outgoing_signature_when   INTEGER NOT NULL,
	outgoing_encryption_when  INTEGER NOT NULL,
	outgoing_encrypted_key    BLOB,
	outgoing_key              BLOB NOT NULL,
	outgoing_signature        BLOB,
	UNIQUE(my_identity_id, other_identity_id,
	       outgoing_signature_when, outgoing_encryption_when)
);

CREATE TABLE IF NOT EXISTS incoming_secrets (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	my_identity_id            INTEGER NOT NULL REFERENCES identities(id),
	other_identity_id         INTEGER NOT NULL REFERENCES identities(id),
	incoming_device_id        INTEGER NOT NULL REFERENCES devices(id),
	incoming_signature_when   INTEGER NOT NULL,
	incoming_encryption_when  INTEGER NOT NULL,
	incoming_encrypted_key    BLOB,
	incoming_key              BLOB NOT NULL,
	incoming_signature        BLOB,
	UNIQUE(my_identity_id, other_identity_id, incoming_device_id,
	       incoming_signature_when, incoming_encryption_when)
);

CREATE TABLE IF NOT EXISTS missing_messages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id        INTEGER NOT NULL REFERENCES devices(id),
	sequence_number  INTEGER NOT NULL,
	UNIQUE(device_id, sequence_number)
);

CREATE TABLE IF NOT EXISTS sequence_numbers (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	encoded_id       INTEGER NOT NULL,
	recipient        INTEGER NOT NULL REFERENCES identities(id),
	sequence_number  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS encoded_messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	sender          INTEGER REFERENCES identities(id),
	device_id       INTEGER REFERENCES devices(id),
	encoded         BLOB NOT NULL,
	short_hash      INTEGER NOT NULL,
	hash            BLOB NOT NULL,
	outbound        INTEGER NOT NULL,
	processed       INTEGER NOT NULL DEFAULT 0,
	processed_time  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_encoded_messages_hash
	ON encoded_messages(short_hash, hash);
CREATE INDEX IF NOT EXISTS idx_encoded_messages_queue
	ON encoded_messages(outbound, processed, id);

CREATE TABLE IF NOT EXISTS pending_uploads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	encoded_id  INTEGER NOT NULL UNIQUE REFERENCES encoded_messages(id)
);

CREATE TABLE IF NOT EXISTS objects (
	id                        INTEGER PRIMARY KEY AUTOINCREMENT,
	feed_id                   INTEGER REFERENCES feeds(id),
	identity_id               INTEGER REFERENCES identities(id),
	device_id                 INTEGER REFERENCES devices(id),
	parent_id                 INTEGER,
	app_id                    INTEGER,
	timestamp                 INTEGER NOT NULL,
	universal_hash            BLOB,
	short_universal_hash      INTEGER,
	type                      TEXT NOT NULL DEFAULT '',
	json                      TEXT NOT NULL DEFAULT '',
	raw                       BLOB,
	last_modified_timestamp   INTEGER NOT NULL,
	encoded_id                INTEGER,
	deleted                   INTEGER NOT NULL DEFAULT 0,
	renderable                INTEGER NOT NULL DEFAULT 0,
	processed                 INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_objects_hash
	ON objects(short_universal_hash, universal_hash);
CREATE INDEX IF NOT EXISTS idx_objects_encode_queue
	ON objects(encoded_id, id);
CREATE INDEX IF NOT EXISTS idx_objects_feed
	ON objects(feed_id, renderable, deleted, last_modified_timestamp);

CREATE TABLE IF NOT EXISTS feeds (
	id                          INTEGER PRIMARY KEY AUTOINCREMENT,
	type                        INTEGER NOT NULL,
	capability                  BLOB NOT NULL,
	short_capability            INTEGER NOT NULL,
	latest_renderable_obj_id    INTEGER,
	latest_renderable_obj_time  INTEGER,
	num_unread                  INTEGER NOT NULL DEFAULT 0,
	name                        TEXT NOT NULL DEFAULT '',
	accepted                    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_feeds_capability
	ON feeds(type, short_capability);

CREATE TABLE IF NOT EXISTS feed_members (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	feed_id      INTEGER NOT NULL REFERENCES feeds(id),
	identity_id  INTEGER NOT NULL REFERENCES identities(id),
	UNIQUE(feed_id, identity_id)
);
`

// ensureSchema creates all tables on a fresh database and records the
// schema version. Future versions migrate from the recorded one.
func ensureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var ver int
	err := db.QueryRow(`SELECT version FROM schema_meta LIMIT 1`).Scan(&ver)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case ver > schemaVersion:
		return fmt.Errorf("database schema version %d is newer than supported %d", ver, schemaVersion)
	}
	return nil
}
