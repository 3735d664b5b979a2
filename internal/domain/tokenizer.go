package domain

// Token is one tagged span produced by a Tagger. Tag is either a
// part-of-speech tag (e.g. "NOUN") or a named-entity category (e.g.
// "PERSON", "ORG").
type Token struct {
	Text string
	Tag  string
}

// Tagger produces tagged tokens and entity spans for a piece of text.
// Which NLP engine or service backs it is deliberately left open; the
// pipeline only consumes the flat token list.
type Tagger interface {
	Tag(text string) []Token
}
