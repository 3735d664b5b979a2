// Package tokenize provides the default Tagger implementation. It is a
// deliberately simple word splitter; deployments with a real NLP service
// plug their own Tagger into the trending pipeline instead.
package tokenize

import (
	"regexp"
	"strings"

	"github.com/crowdsense/streamd/internal/domain"
)

var wordPattern = regexp.MustCompile(`#?[\p{L}\p{N}_']+`)

// HeuristicTagger tags every word as a noun. Hashtags keep their prefix
// so blacklist matching sees the same form users type.
type HeuristicTagger struct{}

// Tag splits text into word tokens.
func (HeuristicTagger) Tag(text string) []domain.Token {
	words := wordPattern.FindAllString(text, -1)
	tokens := make([]domain.Token, 0, len(words))
	for _, w := range words {
		if strings.TrimSpace(w) == "" {
			continue
		}
		tokens = append(tokens, domain.Token{Text: w, Tag: "NOUN"})
	}
	return tokens
}
