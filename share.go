package voiceinfo

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Qazim-tec/VoiceInfoBlog-sub000/views"
)

const truncationMarker = "..."

// BuildShareDocument assembles the preview metadata for a resolved post.
func BuildShareDocument(cfg SiteConfig, post Post, img ResolvedImage) views.ShareDocument {
	title := strings.TrimSpace(post.Title)
	if title == "" {
		title = cfg.Name
	}
	if img.URL == "" {
		img = ResolvedImage{URL: cfg.DefaultImage, Width: DefaultImageWidth, Height: DefaultImageHeight}
	}

	doc := views.ShareDocument{
		Title:        title,
		Description:  describe(cfg, post),
		ImageURL:     img.URL,
		ImageAlt:     title,
		ImageWidth:   img.Width,
		ImageHeight:  img.Height,
		CanonicalURL: postURL(cfg, post.Slug),
		SiteName:     cfg.Name,
		Type:         "article",
		Locale:       cfg.Locale,
		Author:       strings.TrimSpace(post.AuthorName),
		Section:      strings.TrimSpace(post.CategoryName),
		TwitterSite:  cfg.TwitterSite,
	}
	if !post.CreatedAt.IsZero() {
		doc.PublishedTime = post.CreatedAt.UTC().Format(time.RFC3339)
	}
	doc.JSONLD = blogPostingJSONLD(cfg, doc)
	return doc
}

// FallbackShareDocument is served whenever a post cannot be resolved. It
// still carries the full tag set so a preview never comes out empty.
func FallbackShareDocument(cfg SiteConfig) views.ShareDocument {
	doc := views.ShareDocument{
		Title:        cfg.Name,
		Description:  cfg.Description,
		ImageURL:     cfg.DefaultImage,
		ImageAlt:     cfg.Name,
		ImageWidth:   DefaultImageWidth,
		ImageHeight:  DefaultImageHeight,
		CanonicalURL: siteRoot(cfg),
		SiteName:     cfg.Name,
		Type:         "website",
		Locale:       cfg.Locale,
		TwitterSite:  cfg.TwitterSite,
	}
	doc.JSONLD = websiteJSONLD(cfg)
	return doc
}

func describe(cfg SiteConfig, post Post) string {
	if s := PlainText(post.Excerpt); s != "" {
		return s
	}
	if s := truncate(PlainText(post.Content), cfg.ExcerptLength); s != "" {
		return s
	}
	return cfg.Description
}

// PlainText strips markup from HTML content, decodes character references
// and collapses whitespace. Script, style and embed contents are dropped.
func PlainText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if !strings.ContainsAny(content, "<&") {
		return collapseSpace(content)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return collapseSpace(content)
	}
	doc.Find("script, style, noscript, iframe, template").Remove()
	// Block elements would otherwise glue adjacent words together.
	doc.Find("p, div, br, li, h1, h2, h3, h4, h5, h6, blockquote, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return collapseSpace(doc.Text())
}

// truncate cuts s to at most limit runes including the marker, preferring a
// word boundary.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := limit - utf8.RuneCountInString(truncationMarker)
	if cut <= 0 {
		return string(runes[:limit])
	}
	head := string(runes[:cut])
	if i := strings.LastIndexByte(head, ' '); i > len(head)/2 {
		head = head[:i]
	}
	return strings.TrimRight(head, " ,;:.-") + truncationMarker
}

func websiteJSONLD(cfg SiteConfig) string {
	data := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        cfg.Name,
		"url":         siteRoot(cfg),
		"description": cfg.Description,
	}
	return marshalJSONLD(data)
}

func blogPostingJSONLD(cfg SiteConfig, doc views.ShareDocument) string {
	data := map[string]any{
		"@context":    "https://schema.org",
		"@type":       "BlogPosting",
		"headline":    doc.Title,
		"description": doc.Description,
		"image":       doc.ImageURL,
		"url":         doc.CanonicalURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   doc.CanonicalURL,
		},
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  cfg.Name,
		},
	}
	if doc.PublishedTime != "" {
		data["datePublished"] = doc.PublishedTime
	}
	if doc.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  doc.Author,
		}
	}
	if doc.Section != "" {
		data["articleSection"] = doc.Section
	}
	return marshalJSONLD(data)
}

// marshalJSONLD relies on encoding/json escaping <, > and & so the result
// can sit inside a script element.
func marshalJSONLD(data map[string]any) string {
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
