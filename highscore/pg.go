package highscore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/honsa/momal/game"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS room_highscores (
	room_id    TEXT   NOT NULL,
	name_key   TEXT   NOT NULL,
	name       TEXT   NOT NULL,
	points     BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	PRIMARY KEY (room_id, name_key)
)`

// PGStore is the Postgres-backed leaderboard for multi-process setups.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, connString string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect highscore db: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init highscore schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() { s.pool.Close() }

func (s *PGStore) Top(ctx context.Context, roomID string, limit int) ([]Entry, error) {
	roomID = game.NormalizeRoomCode(roomID)
	if roomID == "" {
		return []Entry{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT name, points, updated_at FROM room_highscores
		 WHERE room_id = $1
		 ORDER BY points DESC, updated_at DESC
		 LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query highscores: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Points, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan highscore row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate highscores: %w", err)
	}
	return out, nil
}

func (s *PGStore) Bump(ctx context.Context, roomID, name string, points int) error {
	roomID = game.NormalizeRoomCode(roomID)
	name = strings.TrimSpace(name)
	if roomID == "" || name == "" {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO room_highscores (room_id, name_key, name, points, updated_at)
		 VALUES ($1, $2, $3, $4, EXTRACT(EPOCH FROM now())::BIGINT)
		 ON CONFLICT (room_id, name_key) DO UPDATE SET
			name = EXCLUDED.name,
			points = GREATEST(room_highscores.points, EXCLUDED.points),
			updated_at = EXCLUDED.updated_at`,
		roomID, strings.ToLower(name), name, points)
	if err != nil {
		return fmt.Errorf("bump highscore: %w", err)
	}
	return nil
}
