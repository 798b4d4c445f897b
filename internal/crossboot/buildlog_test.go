package crossboot

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepLogCompressesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := logPath(dir, GCC, StepBuild)
	assert.Equal(t, filepath.Join(dir, "gcc-build.log"), path)

	l, err := openStepLog(path)
	require.NoError(t, err)
	fmt.Fprintln(l, "checking for gcc... aarch64-linux-ohos-gcc")
	fmt.Fprintln(l, "done")
	require.NoError(t, l.Finish(true))

	assert.NoFileExists(t, path)
	found, err := findLog(dir, GCC, StepBuild)
	require.NoError(t, err)
	assert.Equal(t, path+".xz", found)

	lines, err := readLogLines(found)
	require.NoError(t, err)
	assert.Equal(t, []string{"checking for gcc... aarch64-linux-ohos-gcc", "done"}, lines)
}

func TestStepLogKeptPlainOnFailure(t *testing.T) {
	dir := t.TempDir()
	l, err := openStepLog(logPath(dir, Binutils, StepConfigure))
	require.NoError(t, err)
	fmt.Fprintln(l, "configure: error: C compiler cannot create executables")
	require.NoError(t, l.Finish(false))

	found, err := findLog(dir, Binutils, StepConfigure)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "binutils-configure.log"), found)

	logs, err := listLogs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"binutils-configure.log"}, logs)

	_, err = findLog(dir, GCC, StepInstall)
	assert.Error(t, err)
}
