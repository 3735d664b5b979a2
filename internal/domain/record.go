package domain

// Record is the projected and redacted form of an Item kept in the
// annotation payload store and shipped to the index sink. Only fields a
// downstream consumer is allowed to see survive the projection.
type Record struct {
	ID              string       `json:"id"`
	Project         string       `json:"project"`
	CreatedAt       string       `json:"created_at,omitempty"`
	TimestampMs     string       `json:"timestamp_ms,omitempty"`
	Text            string       `json:"text"`
	Lang            string       `json:"lang,omitempty"`
	IsRetweet       bool         `json:"is_retweet"`
	Hashtags        []string     `json:"hashtags,omitempty"`
	User            *RecordUser  `json:"user,omitempty"`
	Place           *RecordPlace `json:"place,omitempty"`
	MatchedKeywords []string     `json:"matched_keywords,omitempty"`
}

// RecordUser is the redacted author projection.
type RecordUser struct {
	IDStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name,omitempty"`
	Location   string `json:"location,omitempty"`
	TimeZone   string `json:"time_zone,omitempty"`
	GeoEnabled bool   `json:"geo_enabled,omitempty"`
}

// RecordPlace is the redacted place projection.
type RecordPlace struct {
	ID          string `json:"id,omitempty"`
	PlaceType   string `json:"place_type,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// NewRecord projects an Item for a project, dropping everything not on the
// keep-list. Matched keyword fragments are attached for audit purposes.
func NewRecord(item *Item, project string, matched []string) Record {
	rec := Record{
		ID:              item.ID,
		Project:         project,
		CreatedAt:       item.CreatedAt,
		TimestampMs:     item.TimestampMs,
		Text:            item.BodyText(),
		Lang:            item.Lang,
		IsRetweet:       item.IsRetweet(),
		MatchedKeywords: matched,
	}
	for _, h := range item.BodyEntities().Hashtags {
		rec.Hashtags = append(rec.Hashtags, h.Text)
	}
	if item.User != nil {
		rec.User = &RecordUser{
			IDStr:      item.User.IDStr,
			ScreenName: item.User.ScreenName,
			Name:       item.User.Name,
			Location:   item.User.Location,
			TimeZone:   item.User.TimeZone,
			GeoEnabled: item.User.GeoEnabled,
		}
	}
	if item.Place != nil {
		rec.Place = &RecordPlace{
			ID:          item.Place.ID,
			PlaceType:   item.Place.PlaceType,
			FullName:    item.Place.FullName,
			Country:     item.Place.Country,
			CountryCode: item.Place.CountryCode,
		}
	}
	return rec
}
