package symboldb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func corruptMagicFile(t *testing.T, path string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[0] = 'X'
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func writeShortFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte{'K', 'O', 'T', 'A'}, 0o644))
}
