package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{0, "NONE"},
		{PreConnect, "PRECONNECT"},
		{Connected | PreDownload, "CONNECTED|PREDOWNLOAD"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.state.String())
	}
}

func TestStateIsTerminal(t *testing.T) {
	assert.False(t, (PreConnect | Connecting).IsTerminal(), "PRECONNECT|CONNECTING should not be terminal")
	assert.True(t, Downloaded.IsTerminal(), "DOWNLOADED should be terminal")
	assert.True(t, Error.IsTerminal(), "ERROR should be terminal")
}

func TestStateInitialized(t *testing.T) {
	var zero State
	assert.False(t, zero.Initialized(), "zero state should not be Initialized")
	assert.True(t, PreConnect.Initialized(), "PRECONNECT should be Initialized")
}
