package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://RemoteOK.com/remote-jobs/101?utm_source=feed&ref=x#apply", "https://remoteok.com/remote-jobs/101"},
		{"weworkremotely.com/remote-jobs/acme", "https://weworkremotely.com/remote-jobs/acme"},
		{"https://rocket.dev", "https://rocket.dev"},
		{"https://jobs.example.com/a/../b/?page=2&gclid=1&id=7", "https://jobs.example.com/b?id=7&page=2"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCanonicalKeepsUnparseable(t *testing.T) {
	assert.Equal(t, "http://[::1", Canonical(" http://[::1 "))
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("https://weworkremotely.com/categories/remote-programming-jobs")
	assert.Equal(t, "https://weworkremotely.com/remote-jobs/acme-go", Resolve(base, "/remote-jobs/acme-go"))
	assert.Equal(t, "https://other.io/x", Resolve(base, "https://other.io/x?utm_medium=rss"))
	assert.Equal(t, "", Resolve(base, " "))
}
