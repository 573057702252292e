// Package words supplies the secret words for a round.
package words

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

var defaultWords = []string{
	"cat", "dog", "car", "bicycle", "sun", "moon", "tree", "house", "pizza", "guitar",
	"elephant", "umbrella", "snowman", "rocket", "ship", "glasses", "coffee", "book",
	"key", "heart", "flower", "cloud", "cake", "phone", "camera",
}

// Supply hands out random words with weak anti-repeat: only the word drawn
// immediately before is excluded, and only while a different word exists.
type Supply struct {
	words []string
}

// New builds a supply from the given list, falling back to the built-in
// defaults when the list is empty.
func New(list []string) *Supply {
	if len(list) == 0 {
		list = defaultWords
	}
	return &Supply{words: list}
}

// Load reads one word per line, skipping blanks and '#' comments.
func Load(path string) (*Supply, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()

	var list []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		w := strings.TrimSpace(sc.Text())
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		list = append(list, w)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return New(list), nil
}

// RandomWord picks a word, never returning exclude unless it is the only
// candidate.
func (s *Supply) RandomWord(exclude string) string {
	candidates := s.words
	if exclude != "" {
		filtered := make([]string, 0, len(s.words))
		for _, w := range s.words {
			if w != exclude {
				filtered = append(filtered, w)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	return candidates[rand.IntN(len(candidates))]
}
