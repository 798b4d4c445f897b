package crossboot

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patchDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"0002-b.patch", "gcc-ohos.patch", "0001-a.patch"} {
		writeFile(t, filepath.Join(dir, "gcc", name), "--- a\n+++ b\n")
	}
	writeFile(t, filepath.Join(dir, "gcc", "README"), "not a patch")
	return dir
}

// forwardPatches lists the patches the executor applied, in order.
func forwardPatches(cmds []Command) []string {
	var names []string
	for _, c := range cmds {
		if c.Name == "patch" && !slices.Contains(c.Args, "-R") {
			names = append(names, filepath.Base(c.Args[len(c.Args)-1]))
		}
	}
	return names
}

func TestDiscoverPatchesPrimaryFirst(t *testing.T) {
	set, err := DiscoverPatches(patchDir(t), GCC, "%s-ohos.patch")
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	var names []string
	for _, p := range set.Ordered() {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"gcc-ohos.patch", "0001-a.patch", "0002-b.patch"}, names)

	empty, err := DiscoverPatches(patchDir(t), Binutils, "%s-ohos.patch")
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestApplyIsIdempotent(t *testing.T) {
	set, err := DiscoverPatches(patchDir(t), GCC, "%s-ohos.patch")
	require.NoError(t, err)
	tree := SourceTree{Component: GCC, Dir: t.TempDir()}

	exec := &recordingExecutor{onRun: func(c Command) error {
		if slices.Contains(c.Args, "-R") {
			return errors.New("reversed patch does not apply")
		}
		return nil
	}}
	a := &PatchApplier{Exec: exec}

	n, err := a.Apply(context.Background(), tree, set, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"gcc-ohos.patch", "0001-a.patch", "0002-b.patch"}, forwardPatches(exec.commands()))
	assert.Contains(t, exec.commands()[1].Args, "-p1")
	assert.True(t, Applied(tree, set))

	before := len(exec.commands())
	n, err = a.Apply(context.Background(), tree, set, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, exec.commands(), before)
}

func TestApplyRecordsPatchesAlreadyInTree(t *testing.T) {
	set, err := DiscoverPatches(patchDir(t), GCC, "%s-ohos.patch")
	require.NoError(t, err)
	tree := SourceTree{Component: GCC, Dir: t.TempDir()}

	// every patch reverses cleanly
	exec := &recordingExecutor{}
	n, err := (&PatchApplier{Exec: exec}).Apply(context.Background(), tree, set, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, forwardPatches(exec.commands()))
	assert.True(t, Applied(tree, set))
}

func TestApplyContinuesPastConflicts(t *testing.T) {
	set, err := DiscoverPatches(patchDir(t), GCC, "%s-ohos.patch")
	require.NoError(t, err)
	tree := SourceTree{Component: GCC, Dir: t.TempDir()}

	exec := &recordingExecutor{onRun: func(c Command) error {
		if slices.Contains(c.Args, "-R") {
			return errors.New("reversed patch does not apply")
		}
		if filepath.Base(c.Args[len(c.Args)-1]) == "0001-a.patch" {
			return errors.New("hunk #1 FAILED")
		}
		return nil
	}}
	n, err := (&PatchApplier{Exec: exec}).Apply(context.Background(), tree, set, 1)
	assert.Equal(t, 2, n)
	require.ErrorIs(t, err, ErrPatchConflict)
	var conflict *PatchConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "0001-a.patch", conflict.Patch)

	applied, err := readPatchMarker(tree.Dir)
	require.NoError(t, err)
	assert.True(t, applied["0002-b.patch"])
	assert.False(t, applied["0001-a.patch"])
	assert.False(t, Applied(tree, set))
}
