package crossboot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

var gnuMirrorMessageOnce sync.Once

// applyGnuMirror rewrites a canonical GNU URL onto mirror.
func applyGnuMirror(mirror, originalURL string) string {
	mirror = strings.TrimRight(mirror, "/")
	if mirror != "" && strings.HasPrefix(originalURL, gnuOriginalURL) {
		return strings.Replace(originalURL, gnuOriginalURL, mirror, 1)
	}
	return originalURL
}

func newHttpClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Minute, // gcc tarballs are large
	}
}

type downloadOptions struct {
	Quiet  bool
	Mirror string
}

// downloadFile fetches finalURL into destFile. A sibling .lock file is held
// for the duration so concurrent invocations never write the same file.
func downloadFile(ctx context.Context, originalURL, finalURL, destFile string, opt downloadOptions) error {
	if !opt.Quiet && originalURL != finalURL {
		gnuMirrorMessageOnce.Do(func() {
			step("Using GNU mirror: %s", opt.Mirror)
		})
	}

	if err := os.MkdirAll(filepath.Dir(destFile), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", destFile, err)
	}
	lockPath := destFile + ".lock"
	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()
	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock for download: %w", err)
	}
	// the lock file stays; removing it would let a waiter lock a new inode
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	if _, err := os.Stat(destFile); err == nil {
		debugf("File %s appeared after acquiring lock, skipping download.\n", destFile)
		return nil
	}

	// Downloads land in a .part file so an interrupted transfer never looks complete.
	partial := destFile + ".part"
	defer os.Remove(partial)

	debugf("Downloading %s -> %s\n", finalURL, destFile)
	if err := fetchWithTools(ctx, finalURL, partial, opt); err != nil {
		debugf("external downloaders failed: %v; using native HTTP client\n", err)
		if err := fetchNative(ctx, finalURL, partial, opt); err != nil {
			return err
		}
	}
	return os.Rename(partial, destFile)
}

// fetchWithTools tries curl, then wget.
func fetchWithTools(ctx context.Context, url, dest string, opt downloadOptions) error {
	var out io.Writer = os.Stderr
	if opt.Quiet {
		out = io.Discard
	}

	if _, err := exec.LookPath("curl"); err == nil {
		args := []string{"-L", "--fail", "-o", dest}
		if opt.Quiet {
			args = append(args, "-sS")
		} else {
			args = append(args, "-#")
		}
		cmd := exec.CommandContext(ctx, "curl", append(args, url)...)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Run(); err == nil {
			return nil
		}
		debugf("curl failed, falling back to wget\n")
	}

	if _, err := exec.LookPath("wget"); err == nil {
		args := []string{"-nv", "-O", dest}
		if opt.Quiet {
			args[0] = "-q"
		}
		cmd := exec.CommandContext(ctx, "wget", append(args, url)...)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Run(); err == nil {
			return nil
		}
		return fmt.Errorf("wget failed")
	}
	return fmt.Errorf("neither curl nor wget is available")
}

func fetchNative(ctx context.Context, url, dest string, opt downloadOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := newHttpClient().Do(req)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dest, err)
	}
	defer out.Close()

	var w io.Writer = out
	if !opt.Quiet && term.IsTerminal(int(os.Stdout.Fd())) {
		bar := progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription(filepath.Base(url)),
			progressbar.OptionSetWriter(os.Stdout),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(os.Stdout, "\n")
			}),
		)
		defer bar.Close()
		w = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write to destination file: %w", err)
	}
	return out.Sync()
}
