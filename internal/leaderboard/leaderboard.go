/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package leaderboard records finished games in SQLite.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	MaxNameLength = 32
	DefaultLimit  = 10
)

var ErrInvalidRecord = errors.New("invalid leaderboard record")

type Record struct {
	ID          string    `json:"id"`
	PlayerName  string    `json:"player_name"`
	Score       int       `json:"score"`
	Moves       int       `json:"moves"`
	TimeSeconds int       `json:"time_seconds"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate trims the player name and checks the record's fields.
func (r *Record) Validate() error {
	r.PlayerName = strings.TrimSpace(r.PlayerName)

	switch {
	case r.PlayerName == "":
		return fmt.Errorf("%w: player name is required", ErrInvalidRecord)
	case utf8.RuneCountInString(r.PlayerName) > MaxNameLength:
		return fmt.Errorf("%w: player name is longer than %d characters", ErrInvalidRecord, MaxNameLength)
	case r.Score < 0 || r.Moves < 0 || r.TimeSeconds < 0:
		return fmt.Errorf("%w: negative values", ErrInvalidRecord)
	}
	return nil
}

type Board struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*Board, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create leaderboard directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open leaderboard database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS ranking (
			id TEXT PRIMARY KEY,
			player_name TEXT NOT NULL,
			score INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			time_seconds INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ranking_order ON ranking(score DESC, time_seconds ASC);`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare leaderboard database: %w", err)
		}
	}

	return &Board{db: db, now: time.Now}, nil
}

// Submit validates r, stamps it with an ID and time, and stores it.
func (b *Board) Submit(ctx context.Context, r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}

	r.ID = uuid.NewString()
	r.CreatedAt = b.now().UTC()

	_, err := b.db.ExecContext(ctx,
		`INSERT INTO ranking (id, player_name, score, moves, time_seconds, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.PlayerName, r.Score, r.Moves, r.TimeSeconds, r.CreatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("store record: %w", err)
	}

	return r, nil
}

// Top returns up to limit records, best score first, fastest time breaking
// ties.
func (b *Board) Top(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, player_name, score, moves, time_seconds, created_at
		FROM ranking
		ORDER BY score DESC, time_seconds ASC, created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.PlayerName, &r.Score, &r.Moves, &r.TimeSeconds, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func (b *Board) Close() error {
	return b.db.Close()
}
