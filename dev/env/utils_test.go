package devenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	plain, err := ResolvePath("/tmp/grades.db")
	require.NoError(t, err)
	require.Equal(t, "/tmp/grades.db", plain)

	resolved, err := ResolvePath("<dev_state>/grades.db")
	require.NoError(t, err)
	require.Equal(t, "grades.db", filepath.Base(resolved))
	require.Equal(t, ".state", filepath.Base(filepath.Dir(resolved)))

	info, err := os.Stat(filepath.Dir(resolved))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}
