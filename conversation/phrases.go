package conversation

import (
	"errors"
	"strings"
)

// Phrases matches stop phrases as case-insensitive substrings. Word
// boundaries are not considered: "exit" matches "exiting".
type Phrases []string

func NewPhrases(list []string) (Phrases, error) {
	if len(list) == 0 {
		return nil, errors.New("no stop phrases configured")
	}
	seen := make(map[string]bool, len(list))
	var p Phrases
	for _, s := range list {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return nil, errors.New("blank stop phrase")
		}
		if !seen[s] {
			seen[s] = true
			p = append(p, s)
		}
	}
	return p, nil
}

// Match reports the first phrase contained in text.
func (p Phrases) Match(text string) (string, bool) {
	if len(p) == 0 || text == "" {
		return "", false
	}
	text = strings.ToLower(text)
	for _, phrase := range p {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}
