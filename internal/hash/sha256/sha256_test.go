package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashProducesHexDigest(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestHashDistinguishesInputs(t *testing.T) {
	t.Parallel()

	h := New()
	a, err := h.Hash([]byte("<html>a</html>"))
	require.NoError(t, err)
	b, err := h.Hash([]byte("<html>b</html>"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	empty, err := h.Hash(nil)
	require.NoError(t, err)
	require.Len(t, empty, 64)
}
