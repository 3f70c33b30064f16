package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/cmd/identity"
)

func TestValue_EncodeParse(t *testing.T) {
	v := Value{AccountID: 42, Series: "abc123", Key: "k-_ey"}
	got, err := ParseValue(v.Encode())
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestParseValue_Malformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"42:abc",
		"42:abc:key:extra",
		"x:abc:key",
		"0:abc:key",
		"-1:abc:key",
		"42::key",
		"42:abc:",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseValue(raw)
			assert.True(t, identity.IsMalformed(err))
		})
	}
}
