package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// AnonymousAccountKey is the account key used when no username was supplied
// and the session was established manually in the browser.
const AnonymousAccountKey = "anonymous"

// Cookie is a lossless representation of a browser cookie as reported by the
// CDP network domain. Expires is seconds since the epoch, -1 for session
// cookies, matching the wire format.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"http_only"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"same_site,omitempty"`
}

// SessionRecord holds the persisted authentication artifacts for one
// (site, account) pair: cookies plus a per-origin localStorage snapshot.
// At most one record exists per pair; a new verification overwrites the
// prior record atomically.
type SessionRecord struct {
	SiteKey        string                       `json:"site_key"`
	AccountKey     string                       `json:"account_key"`
	Cookies        []Cookie                     `json:"cookies"`
	Storage        map[string]map[string]string `json:"storage,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
	LastVerifiedAt time.Time                    `json:"last_verified_at"`
}

// Credentials is the optional username/password pair for automated basic
// login. Resolved once at run start and passed by value; there is no ambient
// per-site credential lookup.
type Credentials struct {
	Username string
	Password string
}

// Provided reports whether the pair is usable for an automated login attempt.
func (c Credentials) Provided() bool {
	return c.Username != "" && c.Password != ""
}

// SiteKeyFor normalizes a website argument ("amazon.com",
// "https://www.walmart.com/") into a stable site key.
func SiteKeyFor(website string) string {
	s := strings.TrimSpace(strings.ToLower(website))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// AccountKeyFor derives a stable, non-reversible account key from a username.
// Usernames never land on disk in the clear; the key is the truncated hex of
// a SHA-256 digest. An empty username yields the anonymous sentinel.
func AccountKeyFor(username string) string {
	if username == "" {
		return AnonymousAccountKey
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(username))))
	return hex.EncodeToString(sum[:])[:12]
}
