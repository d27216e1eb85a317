package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteKeyFor(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"amazon.com", "amazon.com"},
		{"www.amazon.com", "amazon.com"},
		{"https://www.walmart.com/", "walmart.com"},
		{"  Target.COM  ", "target.com"},
		{"https://bestbuy.com/cart?ref=nav", "bestbuy.com"},
		{"newegg.com/some/path", "newegg.com"},
		{"", ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, SiteKeyFor(tc.in), "input %q", tc.in)
	}
}

func TestAccountKeyFor(t *testing.T) {
	key := AccountKeyFor("shopper@example.com")
	assert.Len(t, key, 12)
	assert.NotContains(t, key, "@", "key must not leak the username")

	// Stable across case and surrounding whitespace.
	assert.Equal(t, key, AccountKeyFor("  Shopper@Example.COM "))
	assert.NotEqual(t, key, AccountKeyFor("other@example.com"))

	assert.Equal(t, AnonymousAccountKey, AccountKeyFor(""))
}

func TestCredentialsProvided(t *testing.T) {
	assert.False(t, Credentials{}.Provided())
	assert.False(t, Credentials{Username: "user"}.Provided())
	assert.False(t, Credentials{Password: "secret"}.Provided())
	assert.True(t, Credentials{Username: "user", Password: "secret"}.Provided())
}
