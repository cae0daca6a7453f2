package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// whitespaceRun matches one or more consecutive whitespace characters,
// including newlines and tabs that the portal's templates scatter through
// text nodes.
var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText collapses whitespace runs into single spaces and trims the
// result. The portal renders entity names and labels with heavy indentation,
// so every extracted text field goes through this.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// BuildURL resolves path against base. Absolute URLs pass through unchanged,
// so link hrefs can be fed in directly whether or not the page used absolute
// links.
func BuildURL(base, path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// IDFromURL extracts the named query parameter from rawURL.
// It returns an empty string when the URL cannot be parsed or the parameter
// is absent. Entity identifiers on the portal are always query parameters
// ("id" for courses and users, "categoryid" for semesters, "course" for the
// course references on profile pages).
func IDFromURL(rawURL, param string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(param)
}

// EnsureParam appends param=value to rawURL unless the parameter is already
// present. Used to force showallcourses=1 on profile URLs and perpage=all on
// semester URLs, which bypass the portal's pagination.
func EnsureParam(rawURL, param, value string) string {
	if strings.Contains(rawURL, param) {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + param + "=" + value
}
