package crossboot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourceTree is an unpacked component source directory.
type SourceTree struct {
	Component Component
	Version   string
	Dir       string
}

// SourceProvider yields unpacked source trees. Errors are *FetchError or
// *ExtractError.
type SourceProvider interface {
	Fetch(ctx context.Context, c Component, version string) (SourceTree, error)
	Extract(ctx context.Context, archive, dest string) (SourceTree, error)
}

// objectStore is the part of the R2 client the provider needs.
type objectStore interface {
	DownloadToFile(ctx context.Context, key, path string) error
}

// TarballProvider downloads release tarballs and unpacks them under SourcesDir.
type TarballProvider struct {
	SourcesDir  string
	DownloadDir string
	Mirror      string
	Checksums   *ChecksumStore
	// Remote, when set, is tried under sources/<file> before the GNU mirror.
	Remote objectStore
	Quiet  bool
}

func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// Fetch returns the unpacked tree for c, downloading and extracting only
// what is missing.
func (p *TarballProvider) Fetch(ctx context.Context, c Component, version string) (SourceTree, error) {
	tree := SourceTree{Component: c, Version: version, Dir: filepath.Join(p.SourcesDir, fmt.Sprintf("%s-%s", c, version))}
	if populated(tree.Dir) {
		debugf("=> %s already extracted at %s\n", c, tree.Dir)
		return tree, nil
	}

	archive := filepath.Join(p.DownloadDir, c.ArchiveName(version))
	if _, err := os.Stat(archive); err != nil {
		if err := p.download(ctx, c, version, archive); err != nil {
			return SourceTree{}, err
		}
	}

	if p.Checksums != nil {
		if err := p.Checksums.Verify(c, archive); err != nil {
			// drop the bad download so the next run fetches it again
			os.Remove(archive)
			return SourceTree{}, err
		}
	}

	if _, err := p.Extract(ctx, archive, tree.Dir); err != nil {
		return SourceTree{}, err
	}
	return tree, nil
}

func (p *TarballProvider) download(ctx context.Context, c Component, version, archive string) error {
	name := c.ArchiveName(version)
	if p.Remote != nil {
		if err := os.MkdirAll(p.DownloadDir, 0o755); err != nil {
			return &FetchError{Component: c.String(), Err: err}
		}
		part := archive + ".part"
		err := p.Remote.DownloadToFile(ctx, "sources/"+name, part)
		if err == nil {
			step("Fetched %s from R2 mirror", name)
			if err := os.Rename(part, archive); err != nil {
				return &FetchError{Component: c.String(), Err: err}
			}
			return nil
		}
		debugf("R2 mirror miss for %s: %v\n", name, err)
	}

	original := c.SourceURL(version)
	final := applyGnuMirror(p.Mirror, original)
	if !p.Quiet {
		step("Downloading %s", name)
	}
	if err := downloadFile(ctx, original, final, archive, downloadOptions{Quiet: p.Quiet, Mirror: p.Mirror}); err != nil {
		return &FetchError{Component: c.String(), URL: final, Err: err}
	}
	return nil
}

// archiveExts are recognised archive suffixes, longest first.
var archiveExts = []string{".tar.gz", ".tar.xz", ".tar.zst", ".tar.bz2", ".tgz", ".tar", ".zip"}

// splitArchiveName turns gcc-14.2.0.tar.xz into (gcc, 14.2.0).
func splitArchiveName(archive string) (Component, string) {
	base := filepath.Base(archive)
	for _, ext := range archiveExts {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	if i := strings.LastIndexByte(base, '-'); i > 0 {
		return Component(base[:i]), base[i+1:]
	}
	return Component(base), ""
}

// Extract unpacks archive into dest. The tree is assembled beside dest and
// renamed into place, so dest is either complete or absent.
func (p *TarballProvider) Extract(ctx context.Context, archive, dest string) (SourceTree, error) {
	if err := ctx.Err(); err != nil {
		return SourceTree{}, &ExtractError{Archive: archive, Err: err}
	}

	tmp := dest + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return SourceTree{}, &ExtractError{Archive: archive, Err: err}
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return SourceTree{}, &ExtractError{Archive: archive, Err: err}
	}

	if !p.Quiet {
		step("Extracting %s", filepath.Base(archive))
	}
	var err error
	if strings.HasSuffix(archive, ".zip") {
		err = unzipArchive(archive, tmp)
	} else {
		err = extractTar(archive, tmp)
	}
	if err != nil {
		os.RemoveAll(tmp)
		return SourceTree{}, &ExtractError{Archive: archive, Err: err}
	}

	if err := os.RemoveAll(dest); err != nil {
		return SourceTree{}, &ExtractError{Archive: archive, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		return SourceTree{}, &ExtractError{Archive: archive, Err: err}
	}

	c, version := splitArchiveName(archive)
	return SourceTree{Component: c, Version: version, Dir: dest}, nil
}
