package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/neurospark/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when an update targets a row that does not exist.
var ErrNotFound = errors.New("not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates a new database connection and ensures the schema is up to date.
// Pass ":memory:" for an in-memory database.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection keeps :memory: databases alive and avoids "database is locked".
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Source represents a card source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string // "local" or "git"
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path. It returns nil when absent.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	if err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources ordered by ID.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned stamps the source as scanned now.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, db.now(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source together with its cards and their reviews.
func (db *DB) DeleteSource(sourceID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin deleting source %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM reviews
		WHERE card_hash IN (SELECT hash FROM cards WHERE source_id = ?)
	`, sourceID); err != nil {
		return fmt.Errorf("failed to delete reviews for source %d: %w", sourceID, err)
	}
	if _, err := tx.Exec(`DELETE FROM cards WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete cards for source %d: %w", sourceID, err)
	}
	res, err := tx.Exec(`DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	return tx.Commit()
}

const cardColumns = `hash, question, answer, context, deck, tags`

// InsertCard inserts a new card belonging to the given source.
func (db *DB) InsertCard(card domain.Card, sourceID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO cards (hash, question, answer, context, deck, tags, created_at, source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		card.Hash,
		card.Question,
		card.Answer,
		card.Context,
		card.Deck,
		strings.Join(card.Tags, ","),
		db.now().UnixMilli(),
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return nil
}

// FindCardByHash retrieves a card by its hash. It returns nil when absent.
func (db *DB) FindCardByHash(hash string) (*domain.Card, error) {
	row := db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE hash = ?`, hash)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return &card, nil
}

// GetCardsBySourceID retrieves all cards associated with a source.
func (db *DB) GetCardsBySourceID(sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT `+cardColumns+`
		FROM cards WHERE source_id = ?
		ORDER BY created_at, hash
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// ReassignCard moves a card, and with it its review history, to another source.
func (db *DB) ReassignCard(hash string, sourceID int64) error {
	res, err := db.conn.Exec(`UPDATE cards SET source_id = ? WHERE hash = ?`, sourceID, hash)
	if err != nil {
		return fmt.Errorf("failed to reassign card %s to source %d: %w", hash, sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %s: %w", hash, ErrNotFound)
	}
	return nil
}

// DeleteCardByHash removes a card and its review history.
func (db *DB) DeleteCardByHash(hash string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin deleting card %s: %w", hash, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reviews WHERE card_hash = ?`, hash); err != nil {
		return fmt.Errorf("failed to delete reviews for card %s: %w", hash, err)
	}
	if _, err := tx.Exec(`DELETE FROM cards WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("failed to delete card with hash %s: %w", hash, err)
	}
	return tx.Commit()
}

// DeckSummary is a deck name with the number of cards in it.
type DeckSummary struct {
	Name  string
	Cards int
}

// ListDecks returns every deck with its card count, by name.
func (db *DB) ListDecks() ([]DeckSummary, error) {
	rows, err := db.conn.Query(`
		SELECT deck, COUNT(*) FROM cards
		GROUP BY deck ORDER BY deck
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	defer rows.Close()

	var decks []DeckSummary
	for rows.Next() {
		var d DeckSummary
		if err := rows.Scan(&d.Name, &d.Cards); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (domain.Card, error) {
	var c domain.Card
	var tags string
	if err := s.Scan(&c.Hash, &c.Question, &c.Answer, &c.Context, &c.Deck, &tags); err != nil {
		return domain.Card{}, err
	}
	c.Tags = splitTags(tags)
	return c, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
