package websearch

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var trustedDomains = []string{
	"wiki.debian.org",
	"wiki.archlinux.org",
	"help.ubuntu.com",
	"manpages.debian.org",
	"linux.die.net",
	"man7.org",
	"tldp.org",
	"linuxize.com",
	"digitalocean.com",
	"linode.com",
	"cyberciti.biz",
	"tecmint.com",
	"howtoforge.com",
	"baeldung.com",
	"stackoverflow.com",
	"unix.stackexchange.com",
	"askubuntu.com",
	"serverfault.com",
	"kernel.org",
	"gnu.org",
	"freedesktop.org",
}

var blockedDomains = []string{
	"pinterest.com",
	"facebook.com",
	"twitter.com",
	"instagram.com",
	"tiktok.com",
	"youtube.com",
	"reddit.com",
}

var (
	fillerWords = map[string]bool{
		"como": true, "fazer": true, "eu": true, "posso": true, "pra": true, "para": true,
		"mim": true, "me": true, "o": true, "a": true, "de": true, "do": true, "da": true,
	}
	linuxTerms       = []string{"linux", "debian", "ubuntu", "comando", "terminal", "bash", "shell"}
	debianTerms      = []string{"apt", "dpkg", ".deb", "systemd"}
	commandTerms     = []string{"comando", "executar", "rodar", "instalar", "configurar"}
	relevanceTerms   = []string{"debian", "ubuntu", "linux", "command", "terminal", "bash"}
	documentationURL = []string{"wiki", "manual", "docs", "documentation", "man"}
)

// Optimize rewrites a Portuguese question into a search query: filler words
// are dropped, a Linux or Debian prefix is added when the query lacks one,
// and command-oriented questions get a tutorial suffix.
func Optimize(query string) string {
	lower := fold(query)

	var kept []string
	for _, w := range strings.Fields(query) {
		if !fillerWords[fold(w)] {
			kept = append(kept, w)
		}
	}
	out := strings.Join(kept, " ")

	if !containsAny(lower, linuxTerms) {
		if containsAny(lower, debianTerms) {
			out = "Debian " + out
		} else {
			out = "Linux " + out
		}
	}
	if containsAny(lower, commandTerms) {
		out += " command line tutorial"
	}
	return strings.TrimSpace(out)
}

// score boosts trusted and documentation sites and penalises blocked ones.
// The result is capped at 1.
func score(base float64, url, title, content string) float64 {
	if base == 0 {
		base = 0.5
	}
	url = strings.ToLower(url)
	text := strings.ToLower(title + " " + content)

	s := base
	for _, d := range trustedDomains {
		if strings.Contains(url, d) {
			s += 0.2
			break
		}
	}
	for _, d := range blockedDomains {
		if strings.Contains(url, d) {
			s -= 0.5
			break
		}
	}
	for _, t := range relevanceTerms {
		if strings.Contains(text, t) {
			s += 0.05
		}
	}
	if containsAny(url, documentationURL) {
		s += 0.15
	}
	return min(s, 1.0)
}

var (
	stripHTML  = bluemonday.StrictPolicy()
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanSnippet strips markup and control characters, collapses whitespace
// and cuts the text to at most maxLen runes at a word boundary.
func CleanSnippet(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(stripHTML.Sanitize(s))
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	cut := string(r[:maxLen])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}

func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
