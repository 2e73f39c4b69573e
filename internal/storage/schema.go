package storage

const schema = `
-- The 'sources' table tracks where cards come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local', -- 'local' or 'git'
    last_scanned DATETIME
);

-- The 'cards' table stores each flashcard, keyed by the hash of its content.
CREATE TABLE IF NOT EXISTS cards (
    hash TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    deck TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '', -- comma separated
    created_at INTEGER NOT NULL,   -- unix milliseconds
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_cards_source ON cards(source_id);
CREATE INDEX IF NOT EXISTS idx_cards_deck ON cards(deck);

-- The 'reviews' table is the append-only review history of every card.
CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    card_hash TEXT NOT NULL,
    reviewed_at INTEGER NOT NULL, -- unix milliseconds
    difficulty TEXT NOT NULL,     -- again, hard, good, easy
    interval_days REAL NOT NULL,
    ease_factor REAL NOT NULL,
    streak INTEGER NOT NULL,

    FOREIGN KEY(card_hash) REFERENCES cards(hash) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_reviews_card ON reviews(card_hash, reviewed_at);
CREATE INDEX IF NOT EXISTS idx_reviews_reviewed_at ON reviews(reviewed_at);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    deck TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,
    ended_at INTEGER,
    cards_reviewed INTEGER NOT NULL DEFAULT 0,
    cards_correct INTEGER NOT NULL DEFAULT 0
);

-- Single-row aggregate over all reviews.
CREATE TABLE IF NOT EXISTS user_stats (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    total_reviews INTEGER NOT NULL DEFAULT 0,
    total_correct INTEGER NOT NULL DEFAULT 0,
    streak_days INTEGER NOT NULL DEFAULT 0,
    last_review_at INTEGER
);
INSERT OR IGNORE INTO user_stats (id) VALUES (1);
`
