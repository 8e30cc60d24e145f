package oauth2

import (
	"net/http"
	"net/url"
	"regexp"
)

// HeaderMatcher is an opaque predicate over request headers, used for the
// pass-through and deny-redirect matcher lists. It is deliberately a
// narrow interface, not a type hierarchy, so callers can supply their own
// matching strategy (exact header value, regexp, presence check, ...)
// without this package knowing about any of them.
type HeaderMatcher interface {
	Matches(headers http.Header) bool
}

// HeaderRegexpMatcher matches when the named header's value matches Value.
type HeaderRegexpMatcher struct {
	Name  string
	Value *regexp.Regexp
}

func (m HeaderRegexpMatcher) Matches(headers http.Header) bool {
	for _, v := range headers.Values(m.Name) {
		if m.Value.MatchString(v) {
			return true
		}
	}
	return false
}

// HeaderPresentMatcher matches when the named header is present at all,
// regardless of value.
type HeaderPresentMatcher struct {
	Name string
}

func (m HeaderPresentMatcher) Matches(headers http.Header) bool {
	return len(headers.Values(m.Name)) > 0
}

// PathMatcher matches a request path (and, where noted, a path+query
// string) against a regular expression. Used for the redirect (callback)
// path and the sign-out path.
type PathMatcher struct {
	re *regexp.Regexp
}

// NewPathMatcher compiles pattern as a regular expression matcher. The
// pattern is not anchored implicitly; include "^" and "$" to match a whole
// path.
func NewPathMatcher(pattern string) (PathMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return PathMatcher{}, err
	}
	return PathMatcher{re: re}, nil
}

func (m PathMatcher) Match(path string) bool {
	if m.re == nil {
		return false
	}
	return m.re.MatchString(path)
}

// pathAndQuery returns the path plus "?query" (if any) portion of u, the
// same slice the race-redirect loop guard matches against.
func pathAndQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}
