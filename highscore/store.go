// Package highscore persists per-room leaderboards. The game only touches
// it at round end, through the Store interface.
package highscore

import "context"

// Entry is one leaderboard row.
type Entry struct {
	Name      string `json:"name"`
	Points    int    `json:"points"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Store is the durable leaderboard. Top returns entries sorted by points
// descending, ties broken by recency descending. Bump matches names
// case-insensitively, keeps the maximum points seen and refreshes the
// timestamp.
type Store interface {
	Top(ctx context.Context, roomID string, limit int) ([]Entry, error)
	Bump(ctx context.Context, roomID, name string, points int) error
}
