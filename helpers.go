package voiceinfo

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

// siteRoot returns the site URL with exactly one trailing slash.
func siteRoot(cfg SiteConfig) string {
	return strings.TrimSuffix(cfg.URL, "/") + "/"
}

// postURL returns the canonical URL of a post.
func postURL(cfg SiteConfig, slug string) string {
	return strings.TrimSuffix(cfg.URL, "/") + "/post/" + url.PathEscape(slug)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// bearerToken returns the token from an "Authorization: Bearer ..." header.
func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
