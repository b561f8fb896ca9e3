// Package crawler recognizes link-preview and search crawlers by User-Agent.
//
// Detection is a case-insensitive substring match against a fixed list of
// tokens. It is not verification: any client can claim to be a crawler, so
// the result must never gate access to anything private.
package crawler

import "strings"

type token struct {
	match string // lower-case substring
	name  string
}

// tokens is ordered; the first match names the crawler.
var tokens = []token{
	{"facebookexternalhit", "Facebook"},
	{"facebot", "Facebook"},
	{"meta-externalagent", "Facebook"},
	{"telegrambot", "Telegram"}, // Telegram's agent also says "like TwitterBot"
	{"twitterbot", "Twitterbot"},
	{"linkedinbot", "LinkedIn"},
	{"whatsapp", "WhatsApp"},
	{"slackbot", "Slack"},
	{"slack-imgproxy", "Slack"},
	{"discordbot", "Discord"},
	{"pinterest", "Pinterest"},
	{"redditbot", "Reddit"},
	{"skypeuripreview", "Skype"},
	{"vkshare", "VK"},
	{"embedly", "Embedly"},
	{"quora link preview", "Quora"},
	{"iframely", "Iframely"},
	{"tumblr", "Tumblr"},
	{"bitlybot", "Bitly"},
	{"google-inspectiontool", "Googlebot"},
	{"googlebot", "Googlebot"},
	{"bingbot", "Bingbot"},
	{"yandex", "Yandex"},
	{"baiduspider", "Baidu"},
	{"duckduckbot", "DuckDuckBot"},
	{"applebot", "Applebot"},
	{"slurp", "Yahoo Slurp"},
	{"petalbot", "PetalBot"},
}

// IsCrawler reports whether ua belongs to a known crawler. An empty
// User-Agent is not a crawler.
func IsCrawler(ua string) bool {
	return Name(ua) != ""
}

// Name returns the display name of the crawler ua belongs to, or "" when it
// matches none.
func Name(ua string) string {
	if ua == "" {
		return ""
	}
	ua = strings.ToLower(ua)
	for _, t := range tokens {
		if strings.Contains(ua, t.match) {
			return t.name
		}
	}
	return ""
}

// Tokens returns a copy of the lower-case match tokens, in match order.
func Tokens() []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.match
	}
	return out
}
