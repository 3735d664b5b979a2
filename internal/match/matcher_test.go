package match

import (
	"testing"

	"github.com/crowdsense/streamd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptors() []domain.ProjectDescriptor {
	return []domain.ProjectDescriptor{
		{Slug: "vaccines", Keywords: []string{"vaccine", "flu shot"}, Langs: []string{"en"}},
		{Slug: "zika", Keywords: []string{"zika"}, Langs: nil},
	}
}

func item(text, lang string) *domain.Item {
	return &domain.Item{ID: "1", Text: text, Lang: lang}
}

func slugs(results []Result) []string {
	var out []string
	for _, r := range results {
		out = append(out, r.Slug)
	}
	return out
}

func TestLanguageGate(t *testing.T) {
	// Keyword present but language outside the allow-list.
	results := Projects(item("new vaccine announced", "de"), descriptors())
	assert.NotContains(t, slugs(results), "vaccines")

	results = Projects(item("new vaccine announced", "en"), descriptors())
	require.Contains(t, slugs(results), "vaccines")
	for _, r := range results {
		if r.Slug == "vaccines" {
			assert.Contains(t, r.Fragments, "vaccine")
		}
	}
}

func TestUndeterminedLanguagePasses(t *testing.T) {
	results := Projects(item("new vaccine announced", "und"), descriptors())
	assert.Contains(t, slugs(results), "vaccines")

	results = Projects(item("new vaccine announced", ""), descriptors())
	assert.Contains(t, slugs(results), "vaccines")
}

func TestEmptyAllowListPasses(t *testing.T) {
	results := Projects(item("zika outbreak reported", "pt"), descriptors())
	assert.Contains(t, slugs(results), "zika")
}

func TestMultiWordPhraseNeedsAllTerms(t *testing.T) {
	results := Projects(item("got my flu shot today", "en"), descriptors())
	require.Contains(t, slugs(results), "vaccines")

	results = Projects(item("the flu season is here", "en"), descriptors())
	assert.NotContains(t, slugs(results), "vaccines")
}

func TestZeroDescriptors(t *testing.T) {
	assert.Empty(t, Projects(item("anything", "en"), nil))
}

func TestSingleDescriptorTriviallyMatches(t *testing.T) {
	single := []domain.ProjectDescriptor{
		{Slug: "vaccines", Keywords: []string{"vaccine"}, Langs: []string{"en"}},
	}
	results := Projects(item("totally unrelated text", "de"), single)
	require.Len(t, results, 1)
	assert.Equal(t, "vaccines", results[0].Slug)
	assert.Empty(t, results[0].Fragments)

	results = Projects(item("vaccine news", "de"), single)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"vaccine"}, results[0].Fragments)
}

func TestRetweetMatchesOnOriginal(t *testing.T) {
	rt := &domain.Item{
		ID:              "2",
		Text:            "RT @someone: ...",
		Lang:            "en",
		RetweetedStatus: item("vaccine trial results", "en"),
	}
	results := Projects(rt, descriptors())
	assert.Contains(t, slugs(results), "vaccines")
}

func TestPooledTextIncludesURLsMentionsAndQuote(t *testing.T) {
	it := &domain.Item{
		ID:   "3",
		Text: "interesting read",
		Lang: "en",
		Entities: domain.Entities{
			URLs:         []domain.URL{{ExpandedURL: "https://example.org/vaccine-study"}},
			UserMentions: []domain.UserMention{{ScreenName: "who"}},
		},
	}
	results := Projects(it, descriptors())
	assert.Contains(t, slugs(results), "vaccines")

	quoted := &domain.Item{
		ID:           "4",
		Text:         "look at this",
		Lang:         "en",
		QuotedStatus: item("zika cases rising", "en"),
	}
	results = Projects(quoted, descriptors())
	assert.Contains(t, slugs(results), "zika")
}
