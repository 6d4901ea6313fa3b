// Package validation holds field-level checks shared by the use-cases and handlers.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxPostTextLength    = 10000
	MaxCommentTextLength = 2000
	MaxHashtags          = 30
	MaxMentions          = 50
	MaxImageURLs         = 10
	MaxDisplayNameLength = 50
	MaxBioLength         = 500
	MaxEmailLength       = 254
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// DefaultVideoHosts are the hosts a post's video link may point at.
var DefaultVideoHosts = []string{
	"youtube.com",
	"youtu.be",
	"vimeo.com",
	"player.vimeo.com",
	"tiktok.com",
}

// ValidateUsername checks the 3-30 character [A-Za-z0-9_] format.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-30 characters of letters, digits or underscores")
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email must not exceed %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateTextLength rejects text longer than max characters. Characters are
// counted as runes, so multi-byte text is not penalised.
func ValidateTextLength(field, text string, max int) error {
	if n := utf8.RuneCountInString(text); n > max {
		return fmt.Errorf("%s too long (max %d characters)", field, max)
	}
	return nil
}

// ValidateHTTPURL requires an absolute http or https URL with a host.
func ValidateHTTPURL(raw string) (*url.URL, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("URL %q has no host", raw)
	}
	return u, nil
}

// ValidateVideoURL requires an http(s) URL whose host is one of hosts or a
// subdomain of one (www.youtube.com matches youtube.com).
func ValidateVideoURL(raw string, hosts []string) error {
	u, err := ValidateHTTPURL(raw)
	if err != nil {
		return err
	}
	if !HostAllowed(u.Hostname(), hosts) {
		return fmt.Errorf("video host %q is not supported", u.Hostname())
	}
	return nil
}

// HostAllowed reports whether host equals or is a subdomain of one of hosts.
func HostAllowed(host string, hosts []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, allowed := range hosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
