package crossboot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProber treats the listed paths as executables.
type fakeProber map[string]bool

func (f fakeProber) Executable(path string) bool { return f[path] }

func (f fakeProber) add(dir string, names ...string) fakeProber {
	for _, n := range names {
		f[filepath.Join(dir, n)] = true
	}
	return f
}

// recordingExecutor records every command and optionally runs a hook
// instead of a real process.
type recordingExecutor struct {
	mu    sync.Mutex
	cmds  []Command
	onRun func(Command) error
}

func (e *recordingExecutor) Run(_ context.Context, c Command) error {
	e.mu.Lock()
	e.cmds = append(e.cmds, c)
	hook := e.onRun
	e.mu.Unlock()
	if hook != nil {
		return hook(c)
	}
	return nil
}

func (e *recordingExecutor) commands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Command(nil), e.cmds...)
}

// commandLines renders recorded commands as "<dir base>: name args".
func (e *recordingExecutor) commandLines() []string {
	var lines []string
	for _, c := range e.commands() {
		lines = append(lines, filepath.Base(c.Dir)+": "+strings.TrimSpace(filepath.Base(c.Name)+" "+strings.Join(c.Args, " ")))
	}
	return lines
}

// fakeProvider hands out empty directories under root.
type fakeProvider struct {
	root    string
	mu      sync.Mutex
	fetched []Component
}

func (p *fakeProvider) Fetch(_ context.Context, c Component, version string) (SourceTree, error) {
	p.mu.Lock()
	p.fetched = append(p.fetched, c)
	p.mu.Unlock()
	dir := filepath.Join(p.root, c.String()+"-"+version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SourceTree{}, err
	}
	return SourceTree{Component: c, Version: version, Dir: dir}, nil
}

func (p *fakeProvider) Extract(_ context.Context, archive, dest string) (SourceTree, error) {
	c, v := splitArchiveName(archive)
	return SourceTree{Component: c, Version: v, Dir: dest}, os.MkdirAll(dest, 0o755)
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fetched)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mustResolve(t *testing.T, build, host, target, stage2 string) Resolution {
	t.Helper()
	res, err := Resolve(ResolveOptions{
		Build:        build,
		Host:         host,
		Target:       target,
		Stage2Prefix: stage2,
		Detect:       func() string { return "x86_64-linux-gnu" },
	})
	require.NoError(t, err)
	return res
}
