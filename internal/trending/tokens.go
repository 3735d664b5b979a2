package trending

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/crowdsense/streamd/internal/domain"
)

var (
	mentionPattern = regexp.MustCompile(`@\w+`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)
)

// allowedEntityTags are the named-entity categories counted as topic
// candidates.
var allowedEntityTags = map[string]bool{
	"PERSON":      true,
	"NORP":        true,
	"FAC":         true,
	"ORG":         true,
	"LOC":         true,
	"PRODUCT":     true,
	"EVENT":       true,
	"WORK_OF_ART": true,
	"LAW":         true,
}

// TokenExtractor turns post text into countable topic tokens. Nouns
// longer than two characters and allow-listed entity spans qualify; a
// blacklist built from the stoplist plus the project's own seed keywords
// filters out what the project is already tracking.
type TokenExtractor struct {
	tagger      domain.Tagger
	blacklisted map[string]bool
}

// NewTokenExtractor builds an extractor whose blacklist covers the given
// keywords and their hashtag-prefixed forms, case-folded.
func NewTokenExtractor(tagger domain.Tagger, keywords []string) *TokenExtractor {
	blacklisted := map[string]bool{"rt": true}
	for _, kw := range keywords {
		blacklisted[strings.ToLower(kw)] = true
		blacklisted["#"+strings.ToLower(kw)] = true
	}
	return &TokenExtractor{tagger: tagger, blacklisted: blacklisted}
}

// Extract returns the de-duplicated tokens of a text, mentions and urls
// stripped beforehand.
func (e *TokenExtractor) Extract(text string) []string {
	text = mentionPattern.ReplaceAllString(text, "")
	text = urlPattern.ReplaceAllString(text, "")

	var tokens []string
	seen := map[string]bool{}
	for _, tok := range e.tagger.Tag(text) {
		if !e.qualifies(tok) {
			continue
		}
		trimmed := strings.TrimSpace(tok.Text)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		if e.blacklisted[strings.ToLower(trimmed)] {
			continue
		}
		seen[trimmed] = true
		tokens = append(tokens, trimmed)
	}
	return tokens
}

func (e *TokenExtractor) qualifies(tok domain.Token) bool {
	if tok.Tag == "NOUN" {
		return utf8.RuneCountInString(tok.Text) > 2
	}
	return allowedEntityTags[tok.Tag]
}
