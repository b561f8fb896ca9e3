package views

// ShareDocument carries everything the share-preview page puts in its <head>.
// Values are raw text; the page escapes them when writing.
type ShareDocument struct {
	Title        string
	Description  string
	ImageURL     string
	ImageAlt     string
	ImageWidth   int
	ImageHeight  int
	CanonicalURL string // canonical + og:url
	SiteName     string
	Type         string // "article" or "website"
	Locale       string

	PublishedTime string // RFC3339, empty when unknown
	Author        string
	Section       string

	TwitterSite string // @handle, empty when not configured

	// JSONLD is a marshaled schema.org object. encoding/json escapes <, > and &
	// so it is safe inside a script element.
	JSONLD string
}
