package models

// SubjectType mirrors the upstream's numeric content-type discriminator.
type SubjectType int

const (
	SubjectTypeAll    SubjectType = 0
	SubjectTypeMovie  SubjectType = 1
	SubjectTypeSeries SubjectType = 2
)

// SearchItem is a single row of a paged search response.
type SearchItem struct {
	SubjectID   string      `json:"subjectId"`
	Title       string      `json:"title"`
	DetailPath  string      `json:"detailPath"`
	SubjectType SubjectType `json:"subjectType"`
	ReleaseDate string      `json:"releaseDate,omitempty"`
	Genre       string      `json:"genre,omitempty"`
	Country     string      `json:"country,omitempty"`
	ImdbRating  *float64    `json:"imdbRating,omitempty"`
	Cover       string      `json:"cover,omitempty"`
}

// Pager carries upstream pagination state back to the client.
type Pager struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"perPage"`
	TotalCount int  `json:"totalCount"`
	HasMore    bool `json:"hasMore"`
}

// SearchPage is a page of search results plus its pager.
type SearchPage struct {
	Items []SearchItem `json:"items"`
	Pager Pager        `json:"pager"`
}

// Subject is the core descriptive record of a title.
type Subject struct {
	SubjectID         string   `json:"subjectId"`
	Title             string   `json:"title"`
	ReleaseDate       string   `json:"releaseDate,omitempty"`
	Genre             string   `json:"genre,omitempty"`
	Country           string   `json:"country,omitempty"`
	ImdbRating        *float64 `json:"imdbRating,omitempty"`
	SubtitleLanguages []string `json:"subtitleLanguages,omitempty"`
	Cover             string   `json:"cover,omitempty"`
	Description       string   `json:"description,omitempty"`
}

// Season describes one season of a series resource. Episodes is always
// populated: synthesized from EpisodeCount when the upstream omits an
// explicit list.
type Season struct {
	Number       int   `json:"se"`
	EpisodeCount int   `json:"maxEp"`
	Episodes     []int `json:"episodes"`
	Resolutions  []int `json:"resolutions,omitempty"`
}

// Resource groups the playable inventory of a subject.
type Resource struct {
	Seasons []Season `json:"seasons"`
}

// Star is a single cast entry.
type Star struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Metadata carries page-level descriptive fields. Rating is mirrored here
// from Subject so callers find it in either place.
type Metadata struct {
	Description string   `json:"description,omitempty"`
	Keywords    string   `json:"keywords,omitempty"`
	ImdbRating  *float64 `json:"imdbRating,omitempty"`
}

// ResolvedEntity is the fully inlined object graph decoded from a detail
// page. Constructed once per extraction, never mutated afterwards.
type ResolvedEntity struct {
	Subject  Subject  `json:"subject"`
	Resource Resource `json:"resource"`
	Stars    []Star   `json:"stars,omitempty"`
	Metadata Metadata `json:"metadata"`
}
