// Package normalize holds the pure URL and text helpers used by the extractor and the media downloader.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	priceRun       = regexp.MustCompile(`[\d.,]+`)
	trailingNumber = regexp.MustCompile(`/(\d+)(?:\.html)?$`)
	anyNumber      = regexp.MustCompile(`(\d+)(?:\.[A-Za-z0-9]+)?`)

	priceNoise = strings.NewReplacer(
		"\u202f", "", // narrow no-break space
		"\u00a0", "", // no-break space
		"\u200f", "", // right-to-left mark
		"\u200e", "", // left-to-right mark
	)
)

// Normalizer resolves asset and link URLs against the catalog site's domain.
type Normalizer struct {
	Domain string
}

func New(domain string) Normalizer {
	return Normalizer{Domain: strings.TrimRight(domain, "/")}
}

// URL turns src into an absolute URL on the site's domain unless it already is absolute.
func (n Normalizer) URL(src string) string {
	return NormalizeURL(n.Domain, src)
}

// NormalizeURL is the free-function form of Normalizer.URL.
func NormalizeURL(domain, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return src
	}
	if strings.HasPrefix(src, "http") {
		return src
	}

	domain = strings.TrimRight(domain, "/")
	if strings.HasPrefix(src, "//") {
		scheme := "https"
		if u, err := url.Parse(domain); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + src
	}
	if strings.HasPrefix(src, "/") {
		return domain + src
	}
	return domain + "/" + src
}

// NormalizeLink drops the query string from href and resolves it against base.
func NormalizeLink(base, href string) string {
	href, _, _ = strings.Cut(strings.TrimSpace(href), "?")

	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}

	ref, err := url.Parse(href)
	if err != nil {
		// best effort: glue the raw href onto the base origin
		return baseURL.Scheme + "://" + baseURL.Host + "/" + strings.TrimLeft(href, "/")
	}

	resolved := baseURL.ResolveReference(ref)
	resolved.RawQuery = ""
	resolved.ForceQuery = false
	return resolved.String()
}

// CleanPrice extracts the first numeric run from a displayed price and removes thousands separators.
// It returns "" when raw holds no digits.
func CleanPrice(raw string) string {
	raw = priceNoise.Replace(strings.TrimSpace(raw))
	match := priceRun.FindString(raw)
	if match == "" {
		return ""
	}
	match = strings.ReplaceAll(match, ",", "")
	match = strings.ReplaceAll(match, " ", "")
	if strings.Trim(match, ".") == "" {
		return ""
	}
	return match
}

// ProductNumber returns the catalog number encoded in a product URL path, e.g. "12345" for
// "/some-product-12345.html". It prefers a trailing "/<digits>[.html]" segment and otherwise takes the
// last run of digits in the path. Empty when the path has no digits.
func ProductNumber(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	path := u.Path
	if m := trailingNumber.FindStringSubmatch(path); len(m) > 1 {
		return m[1]
	}

	matches := anyNumber.FindAllStringSubmatch(path, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Extension returns the file extension of a URL path ("" when absent), ignoring the query.
func Extension(rawURL string) string {
	path, _, _ := strings.Cut(rawURL, "?")
	path, _, _ = strings.Cut(path, "#")
	slash := strings.LastIndex(path, "/")
	name := path[slash+1:]
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return ""
	}
	return name[dot:]
}
