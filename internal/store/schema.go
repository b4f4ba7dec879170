package store

const schema = `
-- Identity account. The blob column is the sealed opaque pickle.
CREATE TABLE IF NOT EXISTS account (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	device_id TEXT NOT NULL,
	identity_key TEXT NOT NULL,
	signing_key TEXT NOT NULL,
	blob BLOB NOT NULL,
	uploaded_key_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

-- One-to-one ratchet sessions; many per device key.
CREATE TABLE IF NOT EXISTS pairwise_sessions (
	session_id TEXT NOT NULL,
	device_key TEXT NOT NULL,
	pickle BLOB NOT NULL,
	last_received_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, device_key)
);
CREATE INDEX IF NOT EXISTS idx_pairwise_device
	ON pairwise_sessions(device_key, last_received_at DESC, created_at ASC);

-- Inbound group sessions; rowid preserves creation order for backup batches.
CREATE TABLE IF NOT EXISTS inbound_group_sessions (
	session_id TEXT NOT NULL,
	sender_key TEXT NOT NULL,
	room_id TEXT NOT NULL,
	shared_history INTEGER NOT NULL DEFAULT 0,
	backed_up INTEGER NOT NULL DEFAULT 0,
	first_known_index INTEGER NOT NULL,
	pickle BLOB NOT NULL,
	chains BLOB,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, sender_key)
);
CREATE INDEX IF NOT EXISTS idx_inbound_room ON inbound_group_sessions(room_id);
CREATE INDEX IF NOT EXISTS idx_inbound_backup
	ON inbound_group_sessions(backed_up) WHERE backed_up = 0;

-- One outbound group session per room.
CREATE TABLE IF NOT EXISTS outbound_group_sessions (
	room_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	pickle BLOB NOT NULL,
	created_at INTEGER NOT NULL
);

-- Which device received which session at which ratchet position.
CREATE TABLE IF NOT EXISTS shared_sessions (
	room_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	device_key TEXT NOT NULL,
	chain_index INTEGER NOT NULL,
	PRIMARY KEY (room_id, session_id, user_id, device_id)
);

-- Per-user device lists with verification flags.
CREATE TABLE IF NOT EXISTS devices (
	user_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	identity_key TEXT NOT NULL,
	signing_key TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	locally_verified INTEGER NOT NULL DEFAULT 0,
	cross_signed INTEGER NOT NULL DEFAULT 0,
	first_seen_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, device_id)
);
CREATE INDEX IF NOT EXISTS idx_devices_key ON devices(identity_key);

-- Public cross-signing key hierarchy per user.
CREATE TABLE IF NOT EXISTS cross_signing_keys (
	user_id TEXT PRIMARY KEY,
	master_key TEXT NOT NULL,
	self_signing_key TEXT NOT NULL,
	user_signing_key TEXT NOT NULL,
	locally_verified INTEGER NOT NULL DEFAULT 0,
	cross_signed INTEGER NOT NULL DEFAULT 0
);

-- Local private cross-signing keys; single row, fully populated or absent.
CREATE TABLE IF NOT EXISTS cross_signing_private (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	master BLOB NOT NULL,
	self_signing BLOB NOT NULL,
	user_signing BLOB NOT NULL
);

-- Why a key was withheld from us.
CREATE TABLE IF NOT EXISTS withheld (
	room_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	sender_key TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, session_id)
);

-- Outgoing key request state machine.
CREATE TABLE IF NOT EXISTS outgoing_key_requests (
	request_id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	algorithm TEXT NOT NULL,
	sender_key TEXT NOT NULL,
	recipients BLOB NOT NULL,
	from_index INTEGER NOT NULL,
	state INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_body
	ON outgoing_key_requests(room_id, session_id, algorithm, sender_key);
CREATE INDEX IF NOT EXISTS idx_requests_state ON outgoing_key_requests(state);

-- Forwarded-key replies attached to requests.
CREATE TABLE IF NOT EXISTS request_replies (
	request_id TEXT NOT NULL,
	from_device TEXT NOT NULL DEFAULT '',
	event BLOB NOT NULL,
	received_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replies_request ON request_replies(request_id);

-- Append-only gossip audit trail; rowid is the pagination cursor.
CREATE TABLE IF NOT EXISTS gossip_audit (
	entry_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	room_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	sender_key TEXT NOT NULL DEFAULT '',
	algorithm TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	device_id TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_kind ON gossip_audit(kind);

-- Global policy flags and backup version, keyed strings.
CREATE TABLE IF NOT EXISTS policy (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- Per-room policy flags.
CREATE TABLE IF NOT EXISTS room_policy (
	room_id TEXT PRIMARY KEY,
	block_unverified INTEGER NOT NULL DEFAULT 0,
	encrypt_for_invited INTEGER NOT NULL DEFAULT 0,
	share_history INTEGER NOT NULL DEFAULT 0
);
`
