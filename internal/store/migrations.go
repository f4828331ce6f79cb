package store

// migration is a single schema change.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_messages",
		SQL: `
			CREATE TABLE messages (
				id        TEXT PRIMARY KEY,
				ts        INTEGER NOT NULL,
				username  TEXT NOT NULL DEFAULT '',
				avatar    TEXT NOT NULL DEFAULT '',
				body      TEXT NOT NULL,
				direction INTEGER NOT NULL
			);
			CREATE INDEX idx_messages_ts ON messages(ts);
		`,
	},
}
