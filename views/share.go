package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// SharePage renders the share-preview document crawlers read: a complete
// HTML5 page whose head carries OpenGraph, Twitter card and JSON-LD metadata.
func SharePage(doc ShareDocument) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &headWriter{w: w}

		lang := "en"
		if doc.Locale != "" && len(doc.Locale) >= 2 {
			lang = doc.Locale[:2]
		}
		h.raw("<!doctype html>\n<html lang=\"")
		h.text(lang)
		h.raw("\">\n<head>\n<meta charset=\"utf-8\">\n")
		h.raw("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")

		h.raw("<title>")
		h.text(doc.Title)
		h.raw("</title>\n")
		h.name("description", doc.Description)
		if doc.CanonicalURL != "" {
			h.raw(`<link rel="canonical" href="`)
			h.text(doc.CanonicalURL)
			h.raw("\" />\n")
		}

		h.property("og:title", doc.Title)
		h.property("og:description", doc.Description)
		h.property("og:image", doc.ImageURL)
		h.property("og:image:secure_url", secureURL(doc.ImageURL))
		h.property("og:image:width", itoa(doc.ImageWidth))
		h.property("og:image:height", itoa(doc.ImageHeight))
		h.property("og:image:alt", doc.ImageAlt)
		h.property("og:url", doc.CanonicalURL)
		h.property("og:type", doc.Type)
		h.property("og:site_name", doc.SiteName)
		h.property("og:locale", doc.Locale)
		h.property("article:published_time", doc.PublishedTime)
		h.property("article:author", doc.Author)
		h.property("article:section", doc.Section)

		h.name("twitter:card", "summary_large_image")
		h.name("twitter:title", doc.Title)
		h.name("twitter:description", doc.Description)
		h.name("twitter:image", doc.ImageURL)
		h.name("twitter:image:alt", doc.ImageAlt)
		h.name("twitter:site", doc.TwitterSite)

		if doc.JSONLD != "" {
			h.raw("<script type=\"application/ld+json\">")
			h.raw(doc.JSONLD)
			h.raw("</script>\n")
		}
		h.raw("</head>\n<body>\n<main>\n<h1>")
		h.text(doc.Title)
		h.raw("</h1>\n")
		if doc.Description != "" {
			h.raw("<p>")
			h.text(doc.Description)
			h.raw("</p>\n")
		}
		if doc.CanonicalURL != "" {
			h.raw(`<p><a href="`)
			h.text(doc.CanonicalURL)
			h.raw(`">`)
			h.text(doc.SiteName)
			h.raw("</a></p>\n")
		}
		h.raw("</main>\n</body>\n</html>\n")
		return h.err
	})
}
