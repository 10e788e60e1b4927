package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	site                  TEXT NOT NULL,
	local_id              TEXT NOT NULL,
	name                  TEXT NOT NULL,
	price                 INTEGER,
	status                TEXT NOT NULL DEFAULT 'available',
	category              TEXT NOT NULL DEFAULT '',
	manufacturer          TEXT NOT NULL DEFAULT '',
	barcode               TEXT NOT NULL DEFAULT '',
	image_url             TEXT NOT NULL DEFAULT '',
	url                   TEXT NOT NULL DEFAULT '',
	series                TEXT NOT NULL DEFAULT '',
	character_name        TEXT NOT NULL DEFAULT '',
	extracted_manufacturer TEXT NOT NULL DEFAULT '',
	scale                 TEXT NOT NULL DEFAULT '',
	version               TEXT NOT NULL DEFAULT '',
	product_line          TEXT NOT NULL DEFAULT '',
	product_type          TEXT NOT NULL DEFAULT '',
	extraction_method     TEXT NOT NULL DEFAULT '',
	extraction_confidence REAL NOT NULL DEFAULT 0,
	first_seen_at         DATETIME NOT NULL,
	last_checked_at       DATETIME NOT NULL,
	soldout_at            DATETIME,
	UNIQUE(site, local_id)
);

CREATE TABLE IF NOT EXISTS status_changes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id  INTEGER NOT NULL REFERENCES listings(id),
	change_type TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	changed_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS price_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id  INTEGER NOT NULL REFERENCES listings(id),
	price       INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS match_groups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	match_key  TEXT NOT NULL,
	listing_id INTEGER NOT NULL REFERENCES listings(id),
	confidence REAL NOT NULL DEFAULT 1.0,
	UNIQUE(listing_id)
);

CREATE TABLE IF NOT EXISTS pending_alerts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id    TEXT NOT NULL,
	listing_id  INTEGER NOT NULL,
	change_type TEXT NOT NULL,
	old_value   TEXT NOT NULL DEFAULT '',
	new_value   TEXT NOT NULL DEFAULT '',
	site        TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	price       INTEGER,
	image_url   TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	sent_at     DATETIME
);

CREATE TABLE IF NOT EXISTS subscribers (
	chat_id       INTEGER PRIMARY KEY,
	username      TEXT NOT NULL DEFAULT '',
	alert_new     INTEGER NOT NULL DEFAULT 1 CHECK(alert_new IN (0, 1)),
	alert_restock INTEGER NOT NULL DEFAULT 1 CHECK(alert_restock IN (0, 1)),
	alert_price   INTEGER NOT NULL DEFAULT 1 CHECK(alert_price IN (0, 1)),
	alert_soldout INTEGER NOT NULL DEFAULT 0 CHECK(alert_soldout IN (0, 1)),
	is_active     INTEGER NOT NULL DEFAULT 1 CHECK(is_active IN (0, 1)),
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS watch_terms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    INTEGER NOT NULL REFERENCES subscribers(chat_id),
	keyword    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(chat_id, keyword)
);

CREATE INDEX IF NOT EXISTS idx_listings_site ON listings(site);
CREATE INDEX IF NOT EXISTS idx_listings_barcode ON listings(barcode);
CREATE INDEX IF NOT EXISTS idx_status_changes_listing ON status_changes(listing_id);
CREATE INDEX IF NOT EXISTS idx_price_history_listing ON price_history(listing_id);
CREATE INDEX IF NOT EXISTS idx_match_groups_key ON match_groups(match_key);
CREATE INDEX IF NOT EXISTS idx_pending_alerts_sent ON pending_alerts(sent_at);
CREATE INDEX IF NOT EXISTS idx_pending_alerts_batch ON pending_alerts(batch_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_pending_alerts_pending_created
	ON pending_alerts(created_at) WHERE sent_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_watch_terms_chat ON watch_terms(chat_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
