package gitref

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
)

// allowedSchemes restricts externally-supplied repository URLs to
// transports git itself understands before they reach a shell-exec
// boundary.
var allowedSchemes = map[string]bool{
	"https": true,
	"http":  true,
	"ssh":   true,
	"git":   true,
	"file":  true,
}

var scpLike = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+:[\w./\-]+$`)

// ValidateURL rejects repository URLs that are not a git-understood
// transport. SCP-style (user@host:path) addresses are accepted since
// git treats them as implicit ssh.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return giterr.New(giterr.ValidationError, "repository URL is empty")
	}
	if scpLike.MatchString(raw) {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return giterr.New(giterr.ValidationError, "malformed repository URL: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return giterr.New(giterr.ValidationError, "repository URL has no scheme: %s", raw)
	}
	if !allowedSchemes[scheme] {
		return giterr.New(giterr.ValidationError, "unsupported repository URL scheme %q", scheme)
	}
	return nil
}

// NormalizeURL lowercases the protocol, strips a trailing ".git", and
// rewrites an SSH form to its HTTPS equivalent, so equivalent remotes
// share one repository identity.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, ".git")

	if scpLike.MatchString(raw) {
		// git@github.com:owner/repo -> https://github.com/owner/repo
		at := strings.Index(raw, "@")
		colon := strings.Index(raw, ":")
		if at >= 0 && colon > at {
			host := raw[at+1 : colon]
			path := raw[colon+1:]
			return "https://" + strings.ToLower(host) + "/" + path
		}
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "ssh" {
		u.Scheme = "https"
		u.User = nil
	}
	return u.String()
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// Slug derives the Isolated Repository Store directory name from a
// normalized URL: strip the protocol, replace path separators with
// "-", and drop everything but letters, digits and "-".
func Slug(normalizedURL string) string {
	s := normalizedURL
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	s = strings.ReplaceAll(s, "/", "-")
	s = nonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	return s
}

// SanitizeURL strips embedded userinfo credentials from a URL before
// it is logged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		u.User = nil
	}
	return u.String()
}
