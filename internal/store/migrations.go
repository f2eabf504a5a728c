package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				thread_id      TEXT PRIMARY KEY,
				lead_email     TEXT NOT NULL,
				website_url    TEXT NOT NULL DEFAULT '',
				email_to_send  TEXT NOT NULL DEFAULT '',
				status         TEXT NOT NULL,
				next_node      TEXT NOT NULL DEFAULT '',
				pending_review TEXT,
				rounds         INTEGER NOT NULL DEFAULT 0,
				version        INTEGER NOT NULL,
				created_at     TEXT NOT NULL,
				updated_at     TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_status ON conversations (status, updated_at);

			CREATE TABLE messages (
				thread_id    TEXT NOT NULL REFERENCES conversations(thread_id) ON DELETE CASCADE,
				seq          INTEGER NOT NULL,
				role         TEXT NOT NULL,
				content      TEXT NOT NULL,
				tool_calls   TEXT,
				tool_call_id TEXT NOT NULL DEFAULT '',
				name         TEXT NOT NULL DEFAULT '',
				timestamp    TEXT NOT NULL,
				PRIMARY KEY (thread_id, seq)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create checkpoint log",
		SQL: `
			CREATE TABLE checkpoints (
				thread_id  TEXT NOT NULL REFERENCES conversations(thread_id) ON DELETE CASCADE,
				version    INTEGER NOT NULL,
				status     TEXT NOT NULL,
				next_node  TEXT NOT NULL DEFAULT '',
				messages   INTEGER NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (thread_id, version)
			);
		`,
	},
}
