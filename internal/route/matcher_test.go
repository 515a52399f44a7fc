package route

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcherExactTemplates(t *testing.T) {
	m := NewMatcher(0)

	tests := []struct {
		name     string
		template string
		query    string
		want     float64
	}{
		{"param", "api/users/{id}", "api/users/5", ExactScore},
		{"verb tag and slashes", "[GET] /api/users/{id}/", "/api/users/5", ExactScore},
		{"typed param", "api/users/{id:int}", "api/users/42", ExactScore},
		{"optional param", "api/users/{id?}", "api/users/42", ExactScore},
		{"catch-all spans slashes", "files/{*path}", "files/a/b/c.txt", ExactScore},
		{"case insensitive", "Api/Users/{id}", "api/users/7", ExactScore},
		{"literal dot escaped", "api/v1.0/items", "api/v1x0/items", 0},
		{"param does not cross slash", "api/users/{id}", "api/users/5/orders/9", 0},
		{"different resource", "api/customers/{id}", "api/orders/5", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Score(tt.template, tt.query))
		})
	}
}

func TestMatcherSegmentFallback(t *testing.T) {
	m := NewMatcher(0)

	tests := []struct {
		name     string
		template string
		query    string
		match    bool
	}{
		{"right aligned suffix", "api/customers/{id}", "customers/5", true},
		{"last segment prefix", "api/customers/search", "customers/sea", true},
		{"middle segment must be equal", "api/customers/search", "custom/search", false},
		{"query longer than template", "users/{id}", "api/users/5", false},
		{"empty segment rejected", "api/users/{id}", "users//5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, m.IsMatch(tt.template, tt.query))
			if tt.match {
				assert.Equal(t, SegmentScore, m.Score(tt.template, tt.query))
			}
		})
	}
}

func TestMatcherDegenerateInputs(t *testing.T) {
	m := NewMatcher(0)
	assert.False(t, m.IsMatch("", "api/users"))
	assert.False(t, m.IsMatch("[GET] /", "api"))
	assert.False(t, m.IsMatch("api/users", ""))
	assert.False(t, m.IsMatch("api/users", "/"))
}

func TestCacheEvictsInInsertionOrder(t *testing.T) {
	m := NewMatcher(3)

	for i := 0; i < 3; i++ {
		m.Score(fmt.Sprintf("t%d/{id}", i), "x/1")
	}
	// Lookups must not refresh position.
	m.Score("t0/{id}", "t0/1")

	m.Score("t3/{id}", "t3/1")
	assert.Equal(t, 3, m.CacheLen())
	assert.False(t, m.cache.contains("t0/{id}"))
	assert.True(t, m.cache.contains("t1/{id}"))
	assert.True(t, m.cache.contains("t3/{id}"))
	assert.EqualValues(t, 1, m.Stats().Evictions)
}

func TestCacheCapacityDefault(t *testing.T) {
	m := NewMatcher(0)
	for i := 0; i < DefaultCacheSize+25; i++ {
		m.Score(fmt.Sprintf("r%d", i), "r")
	}
	assert.Equal(t, DefaultCacheSize, m.CacheLen())
}

func TestIsPotentialURL(t *testing.T) {
	assert.True(t, IsPotentialURL("api/users/5"))
	assert.True(t, IsPotentialURL("/users"))
	assert.False(t, IsPotentialURL("/"))
	assert.False(t, IsPotentialURL("UserService"))
	assert.False(t, IsPotentialURL("get api/users"))
	assert.False(t, IsPotentialURL(""))
	assert.False(t, IsPotentialURL("a/"))
	assert.False(t, IsPotentialURL("/a"))
	assert.False(t, IsPotentialURL("///"))
	assert.True(t, IsPotentialURL("/ab"))
}

func TestStripMethod(t *testing.T) {
	tests := []struct {
		query  string
		method string
		rest   string
	}{
		{"get api/users/5", "get", "api/users/5"},
		{"[POST] /api/orders", "post", "/api/orders"},
		{"DELETE api/x/1", "delete", "api/x/1"},
		{"get user", "", "get user"},
		{"fetch api/users", "", "fetch api/users"},
		{"api/users", "", "api/users"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			method, rest := StripMethod(tt.query)
			assert.Equal(t, tt.method, method)
			assert.Equal(t, tt.rest, rest)
		})
	}
}
