package highscore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/honsa/momal/game"
)

// FileStore keeps highscores in one JSON file:
//
//	{"ROOMID": [{"name":"Alice","points":42,"updatedAt":1700000000}, ...]}
//
// Good enough for a single process; use PGStore when running more than one.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("highscore dir: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
			return nil, fmt.Errorf("init highscore file: %w", err)
		}
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// SetClock replaces the store's time source. Test seam.
func (s *FileStore) SetClock(now func() time.Time) { s.now = now }

func (s *FileStore) Top(_ context.Context, roomID string, limit int) ([]Entry, error) {
	roomID = game.NormalizeRoomCode(roomID)
	if roomID == "" {
		return []Entry{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.readAll()
	if err != nil {
		return nil, err
	}
	list := db[roomID]
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Points != list[j].Points {
			return list[i].Points > list[j].Points
		}
		return list[i].UpdatedAt > list[j].UpdatedAt
	})
	if limit >= 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *FileStore) Bump(_ context.Context, roomID, name string, points int) error {
	roomID = game.NormalizeRoomCode(roomID)
	name = strings.TrimSpace(name)
	if roomID == "" || name == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.readAll()
	if err != nil {
		return err
	}

	now := s.now().Unix()
	list := db[roomID]
	found := false
	for i := range list {
		if strings.EqualFold(list[i].Name, name) {
			list[i].Name = name
			if points > list[i].Points {
				list[i].Points = points
			}
			list[i].UpdatedAt = now
			found = true
			break
		}
	}
	if !found {
		list = append(list, Entry{Name: name, Points: points, UpdatedAt: now})
	}
	db[roomID] = list

	return s.writeAll(db)
}

func (s *FileStore) readAll() (map[string][]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]Entry{}, nil
		}
		return nil, fmt.Errorf("read highscores: %w", err)
	}

	var db map[string][]Entry
	if err := json.Unmarshal(raw, &db); err != nil || db == nil {
		// A corrupt file loses history but must not take the game down.
		return map[string][]Entry{}, nil
	}

	out := make(map[string][]Entry, len(db))
	for roomID, list := range db {
		key := game.NormalizeRoomCode(roomID)
		if key == "" {
			continue
		}
		clean := list[:0]
		for _, e := range list {
			if strings.TrimSpace(e.Name) == "" {
				continue
			}
			clean = append(clean, e)
		}
		out[key] = clean
	}
	return out, nil
}

func (s *FileStore) writeAll(db map[string][]Entry) error {
	raw, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("encode highscores: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write highscores: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace highscores: %w", err)
	}
	return nil
}
