package pack200

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("a"),
		bytes.Repeat([]byte("hello world "), 1000),
		append(bytes.Repeat([]byte{0xCA, 0xFE, 0xBA, 0xBE}, 2048), []byte("trailer")...),
	}

	for _, original := range cases {
		packed, err := (Packer{}).Pack(bytes.NewReader(original))
		require.NoError(t, err)

		var out bytes.Buffer
		require.NoError(t, (Unpacker{}).Unpack(bytes.NewReader(packed), &out))

		assert.True(t, bytes.Equal(out.Bytes(), original), "round trip mismatch: got %d bytes, want %d bytes", out.Len(), len(original))
	}
}

func TestPackDeduplicatesRepeatedBlocks(t *testing.T) {
	original := bytes.Repeat([]byte("x"), blockSize*10)
	packed, err := (Packer{}).Pack(bytes.NewReader(original))
	require.NoError(t, err)
	assert.Less(t, len(packed), len(original), "packed size should be far smaller than original for a highly repetitive input")
}
