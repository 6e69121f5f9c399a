package secret

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBox(t *testing.T) *Box {
	t.Helper()
	b, err := New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return b
}

func TestSealOpen(t *testing.T) {
	b := testBox(t)

	sealed, err := b.Seal("resy-auth-token")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "resy-auth-token")

	again, err := b.Seal("resy-auth-token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	got, err := b.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "resy-auth-token", got)
}

func TestOpenRejectsTampering(t *testing.T) {
	b := testBox(t)
	sealed, err := b.Seal("token")
	require.NoError(t, err)

	other, err := New(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	_, err = b.Open(Prefix + "AAAA")
	assert.Error(t, err)
}

func TestReveal(t *testing.T) {
	b := testBox(t)

	v, err := Reveal(nil, "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	sealed, err := b.Seal("hidden")
	require.NoError(t, err)
	_, err = Reveal(nil, sealed)
	assert.ErrorIs(t, err, ErrNoKey)

	v, err = Reveal(b, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hidden", v)
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
}
