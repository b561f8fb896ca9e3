package voiceinfo

import (
	"bytes"
	"encoding/json"
	"time"
)

// Post is the content item served by the upstream content API. The edge only
// reads it; storage and editing live upstream.
type Post struct {
	Slug                string    `json:"slug"`
	Title               string    `json:"title"`
	Excerpt             string    `json:"excerpt"`
	Content             string    `json:"content"`
	FeaturedImageURL    string    `json:"featuredImageUrl"`
	AdditionalImageURLs []string  `json:"additionalImageUrls"`
	AuthorName          string    `json:"authorName"`
	CategoryName        string    `json:"categoryName"`
	CreatedAt           Timestamp `json:"createdAt"`
}

// ImageCandidates returns the featured image followed by the additional
// images, in the order the upstream listed them.
func (p Post) ImageCandidates() []string {
	out := make([]string, 0, 1+len(p.AdditionalImageURLs))
	out = append(out, p.FeaturedImageURL)
	out = append(out, p.AdditionalImageURLs...)
	return out
}

// postEnvelope is the upstream response body: { "data": Post }.
type postEnvelope struct {
	Data *Post `json:"data"`
}

// Timestamp decodes the upstream's createdAt leniently. The content API emits
// zone-less timestamps with up to seven fractional digits; values that cannot
// be parsed decode to the zero time instead of failing the whole payload.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// ImageValidationResult is the outcome of probing one image candidate.
type ImageValidationResult struct {
	URL    string
	Valid  bool
	Reason string
}
