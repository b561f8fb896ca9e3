package voiceinfo

import (
	"bytes"
	"fmt"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// renderPage writes cmp as an HTML response with the given status and
// Cache-Control value. The component renders into a buffer first so a
// failing component cannot leave a half-written 200 behind.
func renderPage(c echo.Context, code int, cacheControl string, cmp templ.Component) error {
	var buf bytes.Buffer
	if err := cmp.Render(c.Request().Context(), &buf); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	if cacheControl != "" {
		c.Response().Header().Set(echo.HeaderCacheControl, cacheControl)
	}
	return c.Blob(code, echo.MIMETextHTMLCharsetUTF8, buf.Bytes())
}
