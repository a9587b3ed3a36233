package storage

// Migrations is the ordered schema history. Never edit an entry that has
// shipped; append a new version instead.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "core_tables",
		UpSQL: `
CREATE TABLE api_metadata (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path             TEXT NOT NULL,
	file_hash             TEXT NOT NULL UNIQUE,
	title                 TEXT NOT NULL,
	version               TEXT NOT NULL,
	openapi_version       TEXT NOT NULL,
	description           TEXT,
	endpoint_count        INTEGER NOT NULL DEFAULT 0,
	schema_count          INTEGER NOT NULL DEFAULT 0,
	security_scheme_count INTEGER NOT NULL DEFAULT 0,
	ingested_at           TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE endpoints (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	api_id                INTEGER NOT NULL REFERENCES api_metadata(id) ON DELETE CASCADE,
	path                  TEXT NOT NULL,
	method                TEXT NOT NULL,
	operation_id          TEXT,
	summary               TEXT,
	description           TEXT,
	tags                  TEXT,
	parameters            TEXT,
	request_body          TEXT,
	responses             TEXT,
	security              TEXT,
	deprecated            INTEGER NOT NULL DEFAULT 0,
	extensions            TEXT,
	schema_dependencies   TEXT,
	security_dependencies TEXT,
	category              TEXT NOT NULL DEFAULT '',
	category_group        TEXT NOT NULL DEFAULT '',
	searchable_text       TEXT NOT NULL DEFAULT '',
	UNIQUE (api_id, path, method)
);

CREATE TABLE schemas (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	api_id          INTEGER NOT NULL REFERENCES api_metadata(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	title           TEXT,
	description     TEXT,
	root            TEXT NOT NULL,
	reference_count INTEGER NOT NULL DEFAULT 0,
	dependencies    TEXT,
	circular_refs   TEXT,
	deprecated      INTEGER NOT NULL DEFAULT 0,
	extensions      TEXT,
	searchable_text TEXT NOT NULL DEFAULT '',
	UNIQUE (api_id, name)
);

CREATE TABLE security_schemes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	api_id          INTEGER NOT NULL REFERENCES api_metadata(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	type            TEXT NOT NULL,
	description     TEXT,
	payload         TEXT NOT NULL,
	reference_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE (api_id, name)
);`,
		DownSQL: `
DROP TABLE security_schemes;
DROP TABLE schemas;
DROP TABLE endpoints;
DROP TABLE api_metadata;`,
	},
	{
		Version: 2,
		Name:    "query_indexes",
		UpSQL: `
CREATE INDEX idx_endpoints_api ON endpoints(api_id);
CREATE INDEX idx_endpoints_category ON endpoints(category);
CREATE INDEX idx_endpoints_method ON endpoints(method);
CREATE INDEX idx_schemas_api_name ON schemas(api_id, name);
CREATE INDEX idx_security_schemes_api ON security_schemes(api_id);`,
		DownSQL: `
DROP INDEX idx_security_schemes_api;
DROP INDEX idx_schemas_api_name;
DROP INDEX idx_endpoints_method;
DROP INDEX idx_endpoints_category;
DROP INDEX idx_endpoints_api;`,
	},
	{
		Version: 3,
		Name:    "fulltext_index",
		UpSQL: `
CREATE VIRTUAL TABLE endpoints_fts USING fts5(
	path,
	operation_id,
	summary,
	description,
	tags,
	parameters,
	content,
	endpoint_id UNINDEXED,
	tokenize = 'porter unicode61'
);`,
		DownSQL: `DROP TABLE endpoints_fts;`,
	},
}
