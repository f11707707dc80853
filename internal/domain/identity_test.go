package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURLIdempotent(t *testing.T) {
	u1, err := NormalizeURL("HTTP://Host.example:80/path")
	require.NoError(t, err)
	u2, err := NormalizeURL(u1.String())
	require.NoError(t, err)
	require.Equal(t, u1.String(), u2.String(), "normalization should be idempotent")
}

func TestNormalizeURLStripsDefaultPort(t *testing.T) {
	u, err := NormalizeURL("http://host:80/path")
	require.NoError(t, err)
	require.Equal(t, "host", u.Host)
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	_, err := NormalizeURL("/just/a/path")
	require.Error(t, err, "expected illegal-url error for a relative path")
}

func TestURLEquals(t *testing.T) {
	a, err := NormalizeURL("http://h/a.jar")
	require.NoError(t, err)
	b, err := NormalizeURL("HTTP://H/a.jar")
	require.NoError(t, err)
	require.True(t, URLEquals(a, b), "differently-cased equivalent URLs should compare equal after normalization")
}
