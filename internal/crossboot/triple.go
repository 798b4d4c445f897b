package crossboot

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Triple is an arch-vendor-os machine identifier such as aarch64-linux-ohos.
type Triple struct {
	Machine string
}

// ParseTriple validates s and normalizes Go-style architecture aliases
// (amd64, arm64) to their toolchain spelling.
func ParseTriple(s string) (Triple, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Triple{}, fmt.Errorf("empty triple")
	}
	parts := strings.Split(s, "-")
	if len(parts) < 2 || len(parts) > 4 {
		return Triple{}, fmt.Errorf("expected arch-vendor-os, got %d segments", len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Triple{}, fmt.Errorf("empty segment")
		}
		for _, r := range p {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '.') {
				return Triple{}, fmt.Errorf("invalid character %q", r)
			}
		}
	}
	parts[0] = normalizeArch(parts[0])
	return Triple{Machine: strings.Join(parts, "-")}, nil
}

// MustParseTriple is ParseTriple for constants and tests.
func MustParseTriple(s string) Triple {
	t, err := ParseTriple(s)
	if err != nil {
		panic(fmt.Sprintf("crossboot: bad triple %q: %v", s, err))
	}
	return t
}

func normalizeArch(arch string) string {
	switch arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	}
	return arch
}

func (t Triple) String() string { return t.Machine }

// Arch returns the architecture segment.
func (t Triple) Arch() string {
	arch, _, _ := strings.Cut(t.Machine, "-")
	return arch
}

// Env returns the last segment, which names the OS/ABI family (gnu, ohos, musl, ...).
func (t Triple) Env() string {
	if i := strings.LastIndex(t.Machine, "-"); i >= 0 {
		return t.Machine[i+1:]
	}
	return ""
}

// Tool returns the triple-prefixed name of a tool, e.g. aarch64-linux-ohos-gcc.
func (t Triple) Tool(name string) string {
	return t.Machine + "-" + name
}

// BuildStage is derived from the three triples; it is never stored.
type BuildStage int

const (
	Native BuildStage = iota
	Stage1Cross
	Stage2Canadian
	Stage3Native
)

func (s BuildStage) String() string {
	switch s {
	case Native:
		return "native"
	case Stage1Cross:
		return "stage1-cross"
	case Stage2Canadian:
		return "stage2-canadian"
	case Stage3Native:
		return "stage3-native"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Classify maps a (build, host, target) combination to exactly one stage.
// hasPredecessor reports whether a stage-2 prefix was configured; it only
// separates Stage3Native from Native.
func Classify(build, host, target Triple, hasPredecessor bool) BuildStage {
	switch {
	case build != host:
		// Host and target coincide in the canonical Canadian cross. A host
		// that differs from both is still built by a stage-1 toolchain.
		return Stage2Canadian
	case host != target:
		return Stage1Cross
	case hasPredecessor:
		return Stage3Native
	default:
		return Native
	}
}

// Resolution is the output of the triple resolver. Every other component
// consumes Stage from here instead of comparing triples itself.
type Resolution struct {
	Build   Triple
	Host    Triple
	Target  Triple
	Stage   BuildStage
	Profile ArchProfile
}

// IsCross reports whether host tools cannot run target code natively.
func (r Resolution) IsCross() bool { return r.Host != r.Target }

// ResolveOptions carries the raw, possibly empty, triple strings.
type ResolveOptions struct {
	Build         string
	Host          string
	Target        string
	DefaultTarget string
	Stage2Prefix  string
	// Detect returns the local machine triple. Defaults to DetectLocalTriple.
	Detect func() string
}

// Resolve fills in defaults, validates the triples and classifies the stage.
func Resolve(opts ResolveOptions) (Resolution, error) {
	detect := opts.Detect
	if detect == nil {
		detect = DetectLocalTriple
	}

	buildStr := opts.Build
	if buildStr == "" {
		buildStr = detect()
	}
	build, err := ParseTriple(buildStr)
	if err != nil {
		return Resolution{}, &ConfigurationError{Field: "build", Value: buildStr, Err: err}
	}

	host := build
	if opts.Host != "" {
		if host, err = ParseTriple(opts.Host); err != nil {
			return Resolution{}, &ConfigurationError{Field: "host", Value: opts.Host, Err: err}
		}
	}

	targetStr := opts.Target
	if targetStr == "" {
		targetStr = opts.DefaultTarget
	}
	if targetStr == "" {
		targetStr = defaultTarget
	}
	target, err := ParseTriple(targetStr)
	if err != nil {
		return Resolution{}, &ConfigurationError{Field: "target", Value: targetStr, Err: err}
	}

	profile, err := LookupArch(target)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Build:   build,
		Host:    host,
		Target:  target,
		Stage:   Classify(build, host, target, opts.Stage2Prefix != ""),
		Profile: profile,
	}, nil
}

// DetectLocalTriple asks the local compiler for its machine triple, falling
// back to uname and finally the Go runtime architecture.
func DetectLocalTriple() string {
	for _, cc := range []string{"cc", "gcc"} {
		out, err := exec.Command(cc, "-dumpmachine").Output()
		if err == nil {
			if s := strings.TrimSpace(string(out)); s != "" {
				return s
			}
		}
	}

	var out bytes.Buffer
	cmd := exec.Command("uname", "-m")
	cmd.Stdout = &out
	arch := ""
	if err := cmd.Run(); err == nil {
		arch = strings.TrimSpace(out.String())
	} else {
		arch = goArch
	}
	return normalizeArch(arch) + "-linux-gnu"
}
