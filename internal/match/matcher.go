// Package match classifies inbound items against project descriptors.
//
// This is a reverse match: instead of an item declaring its project, every
// project's keyword and language rules are tested against the item's
// pooled text.
package match

import (
	"strings"

	"github.com/crowdsense/streamd/internal/domain"
)

// Result is one matched project with the keyword fragments that triggered
// the match. Fragments are kept for audit and blacklist purposes.
type Result struct {
	Slug      string
	Fragments []string
}

// Projects matches one item against the current descriptors and returns
// the matching projects. A retweet is matched on its wrapped original.
//
// With zero descriptors the result is empty. With exactly one descriptor
// the item trivially matches it (fragments are still extracted). With
// multiple descriptors, a project is a candidate if at least one of its
// keyword phrases matches the pooled text, where a phrase matches only if
// every one of its case-insensitive sub-terms is found. Candidates are
// then filtered by the project's language allow-list; an empty allow-list
// or an undetermined item language passes.
func Projects(item *domain.Item, descriptors []domain.ProjectDescriptor) []Result {
	if len(descriptors) == 0 {
		return nil
	}

	target := item.Original()
	pooled := strings.ToLower(pooledText(target))

	if len(descriptors) == 1 {
		d := descriptors[0]
		return []Result{{Slug: d.Slug, Fragments: matchFragments(pooled, d.Keywords)}}
	}

	var results []Result
	for _, d := range descriptors {
		fragments := matchFragments(pooled, d.Keywords)
		if len(fragments) == 0 {
			continue
		}
		if !target.InLocales(d.Langs) {
			continue
		}
		results = append(results, Result{Slug: d.Slug, Fragments: fragments})
	}
	return results
}

// matchFragments returns the sub-terms of every phrase whose sub-terms
// are all present in the pooled text.
func matchFragments(pooled string, phrases []string) []string {
	var fragments []string
	for _, phrase := range phrases {
		terms := strings.Fields(strings.ToLower(phrase))
		if len(terms) == 0 {
			continue
		}
		all := true
		for _, term := range terms {
			if !strings.Contains(pooled, term) {
				all = false
				break
			}
		}
		if all {
			fragments = append(fragments, terms...)
		}
	}
	return fragments
}

// pooledText pools all text the upstream platform itself matches against:
// the body, expanded URLs for links and attached media, and mentioned
// handles, for the item and, if present, its quoted item.
func pooledText(item *domain.Item) string {
	var b strings.Builder
	writeItemText(&b, item)
	if item.QuotedStatus != nil {
		writeItemText(&b, item.QuotedStatus)
	}
	return b.String()
}

func writeItemText(b *strings.Builder, item *domain.Item) {
	b.WriteString(item.BodyText())
	b.WriteString(" ")
	entities := item.BodyEntities()
	for _, u := range entities.URLs {
		b.WriteString(u.ExpandedURL)
		b.WriteString(" ")
	}
	for _, m := range item.MediaEntities() {
		b.WriteString(m.ExpandedURL)
		b.WriteString(" ")
	}
	for _, mention := range entities.UserMentions {
		b.WriteString(mention.ScreenName)
		b.WriteString(" ")
	}
}
