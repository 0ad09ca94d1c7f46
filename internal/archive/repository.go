package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/arnavm/leetbattle/internal/battle"
)

// Repository persists saved matches to Postgres for durable history,
// independent of the live store. Attachment is optional; the arena
// runs fine without it.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the matches table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	q := `CREATE TABLE IF NOT EXISTS battle_matches (
        match_id     TEXT PRIMARY KEY,
        room_id      TEXT NOT NULL,
        problem_name TEXT NOT NULL,
        difficulty   TEXT NOT NULL,
        players      JSONB NOT NULL,
        winner_id    TEXT NOT NULL,
        winner_name  TEXT NOT NULL,
        played_at    TIMESTAMPTZ NOT NULL
    )`
	_, err := r.db.ExecContext(ctx, q)
	return err
}

// SaveMatch upserts one saved match.
func (r *Repository) SaveMatch(ctx context.Context, roomID string, m *battle.Match) error {
	if r == nil || r.db == nil || m == nil {
		return nil
	}
	playersRaw, err := json.Marshal(m.Players)
	if err != nil {
		return err
	}
	q := `INSERT INTO battle_matches (
        match_id, room_id, problem_name, difficulty, players,
        winner_id, winner_name, played_at
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
      ON CONFLICT (match_id) DO UPDATE SET
        room_id=EXCLUDED.room_id,
        problem_name=EXCLUDED.problem_name,
        difficulty=EXCLUDED.difficulty,
        players=EXCLUDED.players,
        winner_id=EXCLUDED.winner_id,
        winner_name=EXCLUDED.winner_name,
        played_at=EXCLUDED.played_at`
	_, err = r.db.ExecContext(ctx, q,
		m.ID, roomID, m.ProblemName, string(m.Difficulty), string(playersRaw),
		m.Winner, m.WinnerName, time.UnixMilli(m.Timestamp),
	)
	return err
}
