package crossboot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ulikunitz/xz"
)

// stepLog is the on-disk copy of one step's output. Successful logs are
// replaced by an .xz copy; failed ones stay plain for inspection.
type stepLog struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

func logPath(logDir string, c Component, s Step) string {
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", c, s))
}

func openStepLog(path string) (*stepLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	// a fresh run supersedes any compressed log of an earlier run
	os.Remove(path + ".xz")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log %s: %w", path, err)
	}
	return &stepLog{path: path, f: f}, nil
}

// Write is safe for the concurrent stdout and stderr copiers.
func (l *stepLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Write(p)
}

// Finish closes the log and compresses it when the step succeeded.
func (l *stepLog) Finish(success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Close(); err != nil {
		return err
	}
	if !success {
		return nil
	}
	if err := compressXZ(l.path, l.path+".xz"); err != nil {
		os.Remove(l.path + ".xz")
		return err
	}
	return os.Remove(l.path)
}

// findLog resolves a step log, preferring the uncompressed copy of a failed run.
func findLog(logDir string, c Component, s Step) (string, error) {
	base := logPath(logDir, c, s)
	for _, p := range []string{base, base + ".xz"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no log for %s %s in %s", c, s, logDir)
}

// listLogs returns every step log in logDir.
func listLogs(logDir string) ([]string, error) {
	entries, err := os.ReadDir(logDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var logs []string
	for _, e := range entries {
		if name := e.Name(); strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".log.xz") {
			logs = append(logs, name)
		}
	}
	slices.Sort(logs)
	return logs, nil
}

// readLogLines reads a plain or xz-compressed log.
func readLogLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	}

	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
