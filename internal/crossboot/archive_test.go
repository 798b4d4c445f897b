package crossboot

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	top := filepath.Join(root, "mpfr-4.2.1")
	writeFile(t, filepath.Join(top, "configure"), "#!/bin/sh\n")
	require.NoError(t, os.Chmod(filepath.Join(top, "configure"), 0o755))
	writeFile(t, filepath.Join(top, "src", "mpfr.h"), "/* mpfr */\n")
	require.NoError(t, os.Symlink("mpfr.h", filepath.Join(top, "src", "mpfr-impl.h")))
	return root
}

func TestTarballExtractStripsTopLevel(t *testing.T) {
	for _, ext := range []string{".tar.xz", ".tar.zst"} {
		t.Run(ext, func(t *testing.T) {
			archive := filepath.Join(t.TempDir(), "mpfr-4.2.1"+ext)
			require.NoError(t, createTarball(releaseTree(t), archive))

			dest := filepath.Join(t.TempDir(), "out")
			require.NoError(t, extractTar(archive, dest))

			data, err := os.ReadFile(filepath.Join(dest, "src", "mpfr.h"))
			require.NoError(t, err)
			assert.Equal(t, "/* mpfr */\n", string(data))
			fi, err := os.Stat(filepath.Join(dest, "configure"))
			require.NoError(t, err)
			assert.NotZero(t, fi.Mode()&0o100)
			link, err := os.Readlink(filepath.Join(dest, "src", "mpfr-impl.h"))
			require.NoError(t, err)
			assert.Equal(t, "mpfr.h", link)
			assert.NoDirExists(t, filepath.Join(dest, "mpfr-4.2.1"))

			ok, err := tarballHas(archive, "src/mpfr.h")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestUnsupportedFormats(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, createTarball(dir, filepath.Join(dir, "x.rar")))

	writeFile(t, filepath.Join(dir, "x.7z"), "")
	assert.ErrorContains(t, extractTar(filepath.Join(dir, "x.7z"), t.TempDir()), "unsupported archive format")
}

func TestTarballProviderExtractIsAtomic(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "mpfr-4.2.1.tar.xz")
	require.NoError(t, createTarball(releaseTree(t), archive))
	dest := filepath.Join(t.TempDir(), "mpfr-4.2.1")

	tp := &TarballProvider{Quiet: true}
	tree, err := tp.Extract(t.Context(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, SourceTree{Component: MPFR, Version: "4.2.1", Dir: dest}, tree)
	assert.FileExists(t, filepath.Join(dest, "configure"))
	assert.NoDirExists(t, dest+".tmp")

	broken := filepath.Join(t.TempDir(), "gmp-6.3.0.tar.xz")
	writeFile(t, broken, "not xz")
	_, err = tp.Extract(t.Context(), broken, filepath.Join(t.TempDir(), "gmp"))
	require.ErrorIs(t, err, ErrExtract)
}

func TestExtractRejectsEscapingSymlinks(t *testing.T) {
	for name, link := range map[string]string{
		"absolute": "/etc",
		"relative": "../../outside",
	} {
		t.Run(name, func(t *testing.T) {
			archive := filepath.Join(t.TempDir(), "evil-1.0.tar")
			f, err := os.Create(archive)
			require.NoError(t, err)
			tw := tar.NewWriter(f)
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: "evil-1.0/", Typeflag: tar.TypeDir, Mode: 0o755}))
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: "evil-1.0/a", Typeflag: tar.TypeSymlink, Linkname: link}))
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: "evil-1.0/a/x", Typeflag: tar.TypeReg, Mode: 0o644}))
			require.NoError(t, tw.Close())
			require.NoError(t, f.Close())

			dest := filepath.Join(t.TempDir(), "out")
			err = extractTar(archive, dest)
			assert.ErrorContains(t, err, "illegal symlink")
			_, err = os.Lstat(filepath.Join(dest, "a"))
			assert.True(t, os.IsNotExist(err))
		})
	}
}
