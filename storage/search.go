package storage

import (
	"fmt"
	"strings"
)

// SearchHit is one message that matched a transcript search.
type SearchHit struct {
	SessionID   string
	SessionName string
	Profile     string
	Role        string
	Snippet     string
}

const snippetRadius = 60

// SearchAllSessions scans every stored transcript for a case-insensitive
// substring match and returns one hit per matching message.
func (s *SessionStore) SearchAllSessions(query string) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	sessions, err := s.List()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	var hits []SearchHit
	for _, meta := range sessions {
		session, err := s.Load(meta.ID)
		if err != nil {
			return nil, fmt.Errorf("search failed on session %s: %w", meta.ID, err)
		}
		for _, m := range session.Messages {
			idx := strings.Index(strings.ToLower(m.Content), needle)
			if idx < 0 {
				continue
			}
			hits = append(hits, SearchHit{
				SessionID:   session.ID,
				SessionName: session.Name,
				Profile:     session.Profile,
				Role:        m.Role,
				Snippet:     snippet(m.Content, idx, len(query)),
			})
		}
	}
	return hits, nil
}

// snippet cuts a window around the match, trimmed to rune boundaries.
func snippet(content string, idx, matchLen int) string {
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	for start > 0 && !isRuneStart(content[start]) {
		start--
	}
	for end < len(content) && !isRuneStart(content[end]) {
		end++
	}

	out := content[start:end]
	out = strings.ReplaceAll(out, "\n", " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
