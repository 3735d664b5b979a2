package domain

import "context"

// ProjectDescriptor describes one monitoring project. Descriptors are
// provided by an external configuration source and are read-only here.
type ProjectDescriptor struct {
	// Slug uniquely identifies the project and scopes all of its keys.
	Slug string `koanf:"slug" json:"slug"`
	// IndexName is the search index documents for this project go to.
	IndexName string `koanf:"index_name" json:"index_name"`
	// Keywords are the matching phrases. A phrase with spaces matches
	// only if every one of its terms occurs in the pooled item text.
	Keywords []string `koanf:"keywords" json:"keywords"`
	// Langs is the language allow-list. Empty means any language.
	Langs []string `koanf:"langs" json:"langs"`

	StorageEnabled        bool `koanf:"storage_enabled" json:"storage_enabled"`
	AnnotationEnabled     bool `koanf:"annotation_enabled" json:"annotation_enabled"`
	TrendingTweetsEnabled bool `koanf:"trending_tweets_enabled" json:"trending_tweets_enabled"`
	TrendingTopicsEnabled bool `koanf:"trending_topics_enabled" json:"trending_topics_enabled"`
}

// ProjectSource returns the current list of project descriptors.
type ProjectSource interface {
	Projects(ctx context.Context) ([]ProjectDescriptor, error)
}
