package views

import (
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

// headWriter writes escaped head elements and keeps the first write error.
type headWriter struct {
	w   io.Writer
	err error
}

func (h *headWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *headWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

// property writes <meta property="..." content="...">, skipping empty content.
func (h *headWriter) property(name, content string) {
	if content == "" {
		return
	}
	h.raw(`<meta property="`)
	h.text(name)
	h.raw(`" content="`)
	h.text(content)
	h.raw("\" />\n")
}

// name writes <meta name="..." content="...">, skipping empty content.
func (h *headWriter) name(name, content string) {
	if content == "" {
		return
	}
	h.raw(`<meta name="`)
	h.text(name)
	h.raw(`" content="`)
	h.text(content)
	h.raw("\" />\n")
}

func itoa(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// secureURL returns u when it is an https URL, for og:image:secure_url.
func secureURL(u string) string {
	if strings.HasPrefix(strings.ToLower(u), "https://") {
		return u
	}
	return ""
}
