package store

// schema is executed once at startup, mirroring the teacher's
// db.initSchema() pattern (CREATE TABLE IF NOT EXISTS everywhere so
// startup against an existing file is idempotent). The FTS5 virtual
// table and its AFTER INSERT/UPDATE/DELETE triggers are grounded on the
// porter-tokenized messages_fts pattern retrieved from the pack; unlike
// that reference this schema also carries an app-level stemmed_message
// column (§3), since search (§4.7) re-stems the query with the same
// stemmer used to populate it rather than relying solely on FTS5's
// built-in porter tokenizer.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS friendships (
	user_low   INTEGER NOT NULL,
	user_high  INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_low, user_high),
	CHECK (user_low < user_high),
	FOREIGN KEY (user_low) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (user_high) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_friendships_user_high ON friendships(user_high);

CREATE TABLE IF NOT EXISTS friend_requests (
	sender_id   INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('Pending', 'Accepted', 'Rejected')),
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (sender_id, receiver_id),
	FOREIGN KEY (sender_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (receiver_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_friend_requests_receiver ON friend_requests(receiver_id, status);

CREATE TABLE IF NOT EXISTS conversations (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	title           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memberships (
	user_id         INTEGER NOT NULL,
	conversation_id INTEGER NOT NULL,
	joined_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_read_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, conversation_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_memberships_conversation ON memberships(conversation_id);

CREATE TABLE IF NOT EXISTS ai_models (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS files (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	path           TEXT NOT NULL,
	mime           TEXT NOT NULL,
	is_profile_img INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (path, mime)
);

CREATE TABLE IF NOT EXISTS user_file_uploads (
	user_id    INTEGER NOT NULL,
	file_id    INTEGER NOT NULL,
	uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, file_id),
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id      INTEGER PRIMARY KEY,
	ai_model_id  INTEGER,
	ai_enabled   INTEGER NOT NULL DEFAULT 0,
	theme        TEXT NOT NULL DEFAULT 'system',
	modified_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY (ai_model_id) REFERENCES ai_models(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL,
	sender_user_id  INTEGER,
	ai_model_id     INTEGER,
	body            TEXT NOT NULL,
	stemmed_body    TEXT NOT NULL DEFAULT '',
	file_id         INTEGER,
	file_name       TEXT,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK ((sender_user_id IS NULL) != (ai_model_id IS NULL)),
	CHECK (file_name IS NULL OR file_id IS NOT NULL),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
	FOREIGN KEY (sender_user_id) REFERENCES users(id),
	FOREIGN KEY (ai_model_id) REFERENCES ai_models(id),
	FOREIGN KEY (file_id) REFERENCES files(id)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id, id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(conversation_id, created_at);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	conversation_id UNINDEXED,
	message,
	stemmed_message,
	content=messages,
	content_rowid=id,
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, conversation_id, message, stemmed_message)
	VALUES (new.id, new.conversation_id, new.body, new.stemmed_body);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, conversation_id, message, stemmed_message)
	VALUES ('delete', old.id, old.conversation_id, old.body, old.stemmed_body);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, conversation_id, message, stemmed_message)
	VALUES ('delete', old.id, old.conversation_id, old.body, old.stemmed_body);
	INSERT INTO messages_fts(rowid, conversation_id, message, stemmed_message)
	VALUES (new.id, new.conversation_id, new.body, new.stemmed_body);
END;

CREATE TRIGGER IF NOT EXISTS messages_touch AFTER UPDATE ON messages
WHEN new.modified_at = old.modified_at BEGIN
	UPDATE messages SET modified_at = CURRENT_TIMESTAMP WHERE id = new.id;
END;

CREATE TRIGGER IF NOT EXISTS user_settings_touch AFTER UPDATE ON user_settings
WHEN new.modified_at = old.modified_at BEGIN
	UPDATE user_settings SET modified_at = CURRENT_TIMESTAMP WHERE user_id = new.user_id;
END;
`
