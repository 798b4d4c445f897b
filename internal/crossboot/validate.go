package crossboot

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ToolProber answers whether a path is an executable regular file.
type ToolProber interface {
	Executable(path string) bool
}

// FSProber probes the real filesystem.
type FSProber struct{}

func (FSProber) Executable(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}

// predecessorTools are required in every predecessor toolchain.
var predecessorTools = []string{"gcc", "g++", "ar", "as", "ld"}

// Validator gates a stage on the presence of the toolchain that must build it.
type Validator struct {
	Probe ToolProber
}

func (v Validator) probe() ToolProber {
	if v.Probe == nil {
		return FSProber{}
	}
	return v.Probe
}

// Validate returns a *MissingPredecessorError naming the first missing tool.
// Stage1Cross and Native never need a predecessor.
func (v Validator) Validate(res Resolution, prefixes ToolchainPrefixes) error {
	switch res.Stage {
	case Stage2Canadian:
		if prefixes.Stage1 == "" {
			return &MissingPredecessorError{Stage: res.Stage, Tool: "stage-1"}
		}
		if err := distinctPrefixes(prefixes, prefixes.Stage1, "stage-1"); err != nil {
			return err
		}
		bin := filepath.Join(prefixes.Stage1, "bin")
		if err := v.requirePrefixed(res.Stage, bin, res.Host); err != nil {
			return err
		}
		if res.Target != res.Host {
			return v.requirePrefixed(res.Stage, bin, res.Target)
		}
		return nil

	case Stage3Native:
		if prefixes.Stage2 == "" {
			return &MissingPredecessorError{Stage: res.Stage, Tool: "stage-2"}
		}
		if err := distinctPrefixes(prefixes, prefixes.Stage2, "stage-2"); err != nil {
			return err
		}
		bin := filepath.Join(prefixes.Stage2, "bin")
		p := v.probe()
		for _, tool := range predecessorTools {
			if p.Executable(filepath.Join(bin, tool)) {
				continue
			}
			prefixed := filepath.Join(bin, res.Host.Tool(tool))
			if p.Executable(prefixed) {
				continue
			}
			debugf("=> %s: neither %s nor %s is executable\n", res.Stage, tool, prefixed)
			return &MissingPredecessorError{Stage: res.Stage, Tool: tool, Path: filepath.Join(bin, tool)}
		}
		return nil
	}
	return nil
}

func (v Validator) requirePrefixed(stage BuildStage, bin string, t Triple) error {
	p := v.probe()
	for _, tool := range predecessorTools {
		path := filepath.Join(bin, t.Tool(tool))
		if !p.Executable(path) {
			return &MissingPredecessorError{Stage: stage, Tool: t.Tool(tool), Path: path}
		}
	}
	return nil
}

// distinctPrefixes rejects installing over the predecessor toolchain, whose
// tools would otherwise pass for this stage's output.
func distinctPrefixes(prefixes ToolchainPrefixes, predecessor, name string) error {
	pred := filepath.Clean(predecessor)
	for _, p := range []struct{ field, dir string }{
		{"prefix", prefixes.Install},
		{"binutils-prefix", prefixes.Binutils()},
	} {
		if p.dir != "" && filepath.Clean(p.dir) == pred {
			return &ConfigurationError{Field: p.field, Value: p.dir, Err: fmt.Errorf("must differ from the %s prefix", name)}
		}
	}
	return nil
}
