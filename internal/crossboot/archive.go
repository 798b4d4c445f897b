package crossboot

import (
	"archive/tar"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// within reports whether path stays inside dest.
func within(dest, path string) bool {
	return path == dest || strings.HasPrefix(path, dest+string(os.PathSeparator))
}

// unzipArchive extracts a zip archive (the NDK ships as one) into dest.
func unzipArchive(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		fpath := filepath.Join(dest, f.Name)
		if !within(dest, fpath) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return err
		}

		if f.Mode()&os.ModeSymlink != 0 {
			rc, err := f.Open()
			if err != nil {
				return err
			}
			target, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			link := string(target)
			if filepath.IsAbs(link) || !within(dest, filepath.Join(filepath.Dir(fpath), link)) {
				return fmt.Errorf("illegal symlink in archive: %s -> %s", f.Name, link)
			}
			_ = os.Remove(fpath)
			if err := os.Symlink(link, fpath); err != nil {
				return err
			}
			continue
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}
		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// decompressor picks a reader from the archive extension.
func decompressor(path string, f io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(path, ".tar.bz2"):
		return bzip2.NewReader(f), func() {}, nil
	case strings.HasSuffix(path, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xr, func() {}, nil
	case strings.HasSuffix(path, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(path, ".tar"):
		return f, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported archive format: %s", filepath.Base(path))
}

// extractTar extracts a (compressed) tarball into dest, stripping the single
// top-level directory release tarballs carry.
func extractTar(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer f.Close()

	r, closer, err := decompressor(archive, f)
	if err != nil {
		return err
	}
	defer closer()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(r)
	var prefix string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header: %w", err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if prefix == "" {
			if i := strings.IndexByte(name, '/'); i != -1 {
				prefix = name[:i+1]
				debugf("Detected tar prefix for stripping: %s\n", prefix)
			}
		}
		if prefix != "" {
			name = strings.TrimPrefix(name, prefix)
		}
		if name == "" || name == strings.TrimSuffix(prefix, "/") {
			continue
		}

		target := filepath.Join(dest, name)
		if !within(dest, target) {
			return fmt.Errorf("illegal file path in archive: %s", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", target, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			out.Close()
			// autotools compares timestamps; keep the release mtimes
			_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !within(dest, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
				return fmt.Errorf("illegal symlink in archive: %s -> %s", hdr.Name, hdr.Linkname)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
			tv := unix.NsecToTimeval(hdr.ModTime.UnixNano())
			_ = unix.Lutimes(target, []unix.Timeval{tv, tv})
		case tar.TypeLink:
			oldname := filepath.Join(dest, strings.TrimPrefix(strings.TrimPrefix(hdr.Linkname, "./"), prefix))
			if !within(dest, oldname) {
				return fmt.Errorf("illegal link target in archive: %s", hdr.Linkname)
			}
			_ = os.Remove(target)
			if err := os.Link(oldname, target); err != nil {
				return fmt.Errorf("failed to link %s: %w", target, err)
			}
		default:
			debugf("Skipping unsupported tar entry type %c: %s\n", hdr.Typeflag, hdr.Name)
		}
	}
	return nil
}

// createTarball archives srcDir into dest, compressing by extension
// (.tar.zst or .tar.xz). Entries are root owned.
func createTarball(srcDir, dest string) (err error) {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create tarball file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	var cw io.WriteCloser
	switch {
	case strings.HasSuffix(dest, ".tar.zst"):
		cw, err = zstd.NewWriter(out)
	case strings.HasSuffix(dest, ".tar.xz"):
		cw, err = xz.NewWriter(out)
	default:
		return fmt.Errorf("unsupported package format: %s", filepath.Base(dest))
	}
	if err != nil {
		return err
	}

	tw := tar.NewWriter(cw)
	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." || rel == lockFileName {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return fmt.Errorf("failed to add files to tarball: %w", walkErr)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

// compressXZ writes an xz-compressed copy of srcPath to destPath.
func compressXZ(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	w, err := xz.NewWriter(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// tarballHas reports whether a (compressed) tarball contains an entry
// whose name ends in suffix.
func tarballHas(archive, suffix string) (bool, error) {
	f, err := os.Open(archive)
	if err != nil {
		return false, err
	}
	defer f.Close()

	r, closer, err := decompressor(archive, f)
	if err != nil {
		return false, err
	}
	defer closer()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("error reading tar: %w", err)
		}
		if strings.HasSuffix(hdr.Name, suffix) {
			return true, nil
		}
	}
}
