package crossboot

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"lukechampine.com/blake3"
)

// ComputeChecksum returns the hex BLAKE3-256 digest of a file.
func ComputeChecksum(path string) (string, error) {
	// Try system b3sum first
	if _, err := exec.LookPath("b3sum"); err == nil {
		var out bytes.Buffer
		cmd := exec.Command("b3sum", "--no-names", path)
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			if fields := strings.Fields(out.String()); len(fields) > 0 {
				return fields[0], nil
			}
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// ChecksumStore is the `<checksum> <file>` list kept at <workdir>/checksums.
type ChecksumStore struct {
	path string

	mu   sync.Mutex
	sums map[string]string
}

// LoadChecksums reads the store; a missing file is an empty store.
func LoadChecksums(path string) (*ChecksumStore, error) {
	s := &ChecksumStore{path: path, sums: make(map[string]string)}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) >= 2 {
			s.sums[strings.Join(parts[1:], " ")] = parts[0]
		}
	}
	return s, scanner.Err()
}

// Verify checks archive against its recorded checksum. An archive with no
// entry is recorded and accepted.
func (s *ChecksumStore) Verify(component Component, archive string) error {
	sum, err := ComputeChecksum(archive)
	if err != nil {
		return &FetchError{Component: component.String(), Err: err}
	}

	name := filepath.Base(archive)
	s.mu.Lock()
	defer s.mu.Unlock()

	want, ok := s.sums[name]
	if !ok {
		debugf("=> Recording checksum for %s\n", name)
		s.sums[name] = sum
		return s.save()
	}
	if want != sum {
		return &FetchError{
			Component: component.String(),
			Err:       fmt.Errorf("checksum mismatch for %s: expected %s, got %s", name, want, sum),
		}
	}
	return nil
}

func (s *ChecksumStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	names := make([]string, 0, len(s.sums))
	for name := range s.sums {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&buf, "%s  %s\n", s.sums[name], name)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
