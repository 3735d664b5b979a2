package domain

import (
	"encoding/json"
	"strings"
)

// Item is a raw firehose post. The field layout follows the upstream
// streaming format: a retweet wraps the original under retweeted_status,
// a quote embeds the quoted post under quoted_status, and posts longer
// than the classic limit carry their full body under extended_tweet.
type Item struct {
	ID                string        `json:"id_str"`
	Text              string        `json:"text"`
	Lang              string        `json:"lang,omitempty"`
	CreatedAt         string        `json:"created_at,omitempty"`
	TimestampMs       string        `json:"timestamp_ms,omitempty"`
	PossiblySensitive bool          `json:"possibly_sensitive,omitempty"`
	ExtendedTweet     *ExtendedBody `json:"extended_tweet,omitempty"`
	RetweetedStatus   *Item         `json:"retweeted_status,omitempty"`
	QuotedStatus      *Item         `json:"quoted_status,omitempty"`
	Entities          Entities      `json:"entities"`
	ExtendedEntities  *Entities     `json:"extended_entities,omitempty"`
	User              *Author       `json:"user,omitempty"`
	Place             *Place        `json:"place,omitempty"`

	// ModelConfidence is an optional relevance probability attached by an
	// upstream classifier. Zero means no prediction was attached.
	ModelConfidence float64 `json:"model_confidence,omitempty"`
}

// ExtendedBody carries the untruncated text and entities of long posts.
type ExtendedBody struct {
	FullText         string    `json:"full_text"`
	Entities         Entities  `json:"entities"`
	ExtendedEntities *Entities `json:"extended_entities,omitempty"`
}

// Entities holds the nested metadata attached to a post body.
type Entities struct {
	Hashtags     []Hashtag     `json:"hashtags,omitempty"`
	URLs         []URL         `json:"urls,omitempty"`
	Media        []Media       `json:"media,omitempty"`
	UserMentions []UserMention `json:"user_mentions,omitempty"`
}

type Hashtag struct {
	Text string `json:"text"`
}

type URL struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
}

type Media struct {
	URL         string `json:"url,omitempty"`
	ExpandedURL string `json:"expanded_url"`
	Type        string `json:"type,omitempty"`
}

type UserMention struct {
	ScreenName string `json:"screen_name"`
	IDStr      string `json:"id_str,omitempty"`
}

// Author is the posting account.
type Author struct {
	IDStr       string `json:"id_str"`
	ScreenName  string `json:"screen_name"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Lang        string `json:"lang,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	GeoEnabled  bool   `json:"geo_enabled,omitempty"`
}

// Place is the tagged location of a post.
type Place struct {
	ID          string `json:"id,omitempty"`
	PlaceType   string `json:"place_type,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// ParseItem decodes a raw firehose payload. Items without an id or any
// text content are rejected with ErrMalformedItem.
func ParseItem(raw []byte) (*Item, error) {
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, ErrMalformedItem
	}
	if item.ID == "" || item.BodyText() == "" {
		return nil, ErrMalformedItem
	}
	return &item, nil
}

// IsRetweet reports whether the item wraps an original post.
func (i *Item) IsRetweet() bool { return i.RetweetedStatus != nil }

// IsQuote reports whether the item embeds a quoted post.
func (i *Item) IsQuote() bool { return i.QuotedStatus != nil }

// Original returns the wrapped original of a retweet, or the item itself.
func (i *Item) Original() *Item {
	if i.RetweetedStatus != nil {
		return i.RetweetedStatus
	}
	return i
}

// BodyText returns the full post body, preferring the extended form.
func (i *Item) BodyText() string {
	if i.ExtendedTweet != nil && i.ExtendedTweet.FullText != "" {
		return i.ExtendedTweet.FullText
	}
	return i.Text
}

// BodyEntities returns the entities matching BodyText.
func (i *Item) BodyEntities() Entities {
	if i.ExtendedTweet != nil {
		return i.ExtendedTweet.Entities
	}
	return i.Entities
}

// MediaEntities returns the attached media, preferring the extended form.
func (i *Item) MediaEntities() []Media {
	if i.ExtendedTweet != nil && i.ExtendedTweet.ExtendedEntities != nil {
		return i.ExtendedTweet.ExtendedEntities.Media
	}
	if i.ExtendedEntities != nil {
		return i.ExtendedEntities.Media
	}
	return i.Entities.Media
}

// Sensitive reports whether the item or its wrapped original carries the
// sensitivity flag.
func (i *Item) Sensitive() bool {
	if i.PossiblySensitive {
		return true
	}
	return i.RetweetedStatus != nil && i.RetweetedStatus.PossiblySensitive
}

// InLocales reports whether the item's declared language passes the given
// allow-list. An empty list or an undetermined language always passes.
func (i *Item) InLocales(locales []string) bool {
	if len(locales) == 0 || i.Lang == "" || i.Lang == "und" {
		return true
	}
	for _, l := range locales {
		if strings.EqualFold(l, i.Lang) {
			return true
		}
	}
	return false
}
