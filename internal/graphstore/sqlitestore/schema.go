package sqlitestore

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL CHECK (kind IN ('document', 'placeholder')),
	name          TEXT NOT NULL,
	name_key      TEXT NOT NULL,
	path          TEXT UNIQUE,
	title         TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL DEFAULT '',
	tags          TEXT NOT NULL DEFAULT '[]',
	aliases       TEXT NOT NULL DEFAULT '[]',
	properties    TEXT NOT NULL DEFAULT '{}',
	embedding     TEXT,
	head_chunk_id TEXT,
	modified_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_nodes_name_key ON nodes(name_key);
CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_placeholder_name
	ON nodes(name_key) WHERE kind = 'placeholder';

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	name        TEXT NOT NULL,
	content     TEXT NOT NULL,
	embedding   TEXT,
	next_id     TEXT,
	UNIQUE(document_id, ordinal)
);

CREATE TABLE IF NOT EXISTS mentions (
	id        TEXT PRIMARY KEY,
	source_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	format    TEXT NOT NULL DEFAULT 'direct',
	headers   TEXT NOT NULL DEFAULT '[]',
	block     TEXT NOT NULL DEFAULT '',
	display   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_mentions_source ON mentions(source_id);
CREATE INDEX IF NOT EXISTS idx_mentions_target ON mentions(target_id);
`
