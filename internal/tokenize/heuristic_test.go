package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crowdsense/streamd/internal/domain"
)

func TestHeuristicTagger(t *testing.T) {
	got := HeuristicTagger{}.Tag("Measles outbreak #measles, again!")

	assert.Equal(t, []domain.Token{
		{Text: "Measles", Tag: "NOUN"},
		{Text: "outbreak", Tag: "NOUN"},
		{Text: "#measles", Tag: "NOUN"},
		{Text: "again", Tag: "NOUN"},
	}, got)
}

func TestHeuristicTaggerEmpty(t *testing.T) {
	assert.Empty(t, HeuristicTagger{}.Tag("  ... !!"))
}
