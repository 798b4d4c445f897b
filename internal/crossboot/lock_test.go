package crossboot

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPrefixIsExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prefix")
	first, err := lockPrefix(dir)
	require.NoError(t, err)

	holder, err := os.ReadFile(filepath.Join(dir, lockFileName))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(holder)))

	_, err = lockPrefix(dir)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "pid "+strconv.Itoa(os.Getpid()))

	first.Release()
	first.Release()
	second, err := lockPrefix(dir)
	require.NoError(t, err)
	second.Release()
}
