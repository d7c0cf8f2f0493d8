package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is applied in order; never edit an entry once released.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create agents, conversations and messages",
		SQL: `
			CREATE TABLE agents (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				address     TEXT NOT NULL DEFAULT '',
				connection  TEXT NOT NULL DEFAULT 'fixture'
			);

			CREATE TABLE conversations (
				session_id  TEXT PRIMARY KEY,
				agent_id    TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
				agent_name  TEXT NOT NULL,
				title       TEXT NOT NULL,
				preview     TEXT NOT NULL DEFAULT '',
				connection  TEXT NOT NULL DEFAULT 'fixture',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_agent ON conversations (agent_id, created_at);

			CREATE TABLE messages (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				id          TEXT NOT NULL UNIQUE,
				session_id  TEXT NOT NULL REFERENCES conversations(session_id) ON DELETE CASCADE,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL
			);

			CREATE INDEX idx_messages_session ON messages (session_id, seq);
		`,
	},
	{
		Version: 2,
		Name:    "add pinned flag to conversations",
		SQL: `
			ALTER TABLE conversations ADD COLUMN pinned INTEGER NOT NULL DEFAULT 0;
		`,
	},
}
