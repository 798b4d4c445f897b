package crossboot

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ArchKind tags each entry of the architecture table.
type ArchKind int

const (
	ArchUnknown ArchKind = iota
	ArchAArch64
	ArchARMHardFloat
	ArchARM
	ArchRISCV64
	ArchMIPS64
	ArchMIPS
	ArchX86_64
	ArchX86
	ArchPPC64LE
)

func (k ArchKind) String() string {
	switch k {
	case ArchAArch64:
		return "aarch64"
	case ArchARMHardFloat:
		return "arm-hf"
	case ArchARM:
		return "arm"
	case ArchRISCV64:
		return "riscv64"
	case ArchMIPS64:
		return "mips64"
	case ArchMIPS:
		return "mips"
	case ArchX86_64:
		return "x86_64"
	case ArchX86:
		return "x86"
	case ArchPPC64LE:
		return "ppc64le"
	default:
		return "unknown"
	}
}

// ArchProfile holds the architecture-specific configure knobs.
type ArchProfile struct {
	Kind           ArchKind
	ConfigureFlags []string
	Sanitizer      bool
	HashStyle      string
	// DisabledLibraries are target runtime libraries turned off with --disable-<lib>.
	DisabledLibraries map[string]struct{}
}

// Disabled returns the disabled runtime libraries in sorted order.
func (p ArchProfile) Disabled() []string {
	libs := make([]string, 0, len(p.DisabledLibraries))
	for lib := range p.DisabledLibraries {
		libs = append(libs, lib)
	}
	slices.Sort(libs)
	return libs
}

// CompilerFlags are the configure arguments the profile contributes to gcc.
func (p ArchProfile) CompilerFlags() []string {
	flags := slices.Clone(p.ConfigureFlags)
	flags = append(flags, "--with-linker-hash-style="+p.HashStyle)
	if p.Sanitizer {
		flags = append(flags, "--enable-libsanitizer")
	} else {
		flags = append(flags, "--disable-libsanitizer")
	}
	for _, lib := range p.Disabled() {
		flags = append(flags, "--disable-"+lib)
	}
	return flags
}

// BinutilsFlags are the configure arguments the profile contributes to binutils.
func (p ArchProfile) BinutilsFlags() []string {
	return []string{"--enable-default-hash-style=" + p.HashStyle}
}

type archRule struct {
	kind  ArchKind
	match func(arch, env string) bool
}

// archRules is evaluated top to bottom. A specific rule must come before any
// general rule that also accepts its inputs: hard-float ARM before ARM,
// mips64 before mips, x86_64 before x86.
var archRules = []archRule{
	{ArchAArch64, func(a, _ string) bool { return a == "aarch64" || a == "aarch64_be" }},
	{ArchARMHardFloat, func(a, env string) bool {
		return strings.HasPrefix(a, "arm") && (strings.HasSuffix(a, "hf") || strings.HasSuffix(env, "hf"))
	}},
	{ArchARM, func(a, _ string) bool { return strings.HasPrefix(a, "arm") || strings.HasPrefix(a, "thumb") }},
	{ArchRISCV64, func(a, _ string) bool { return a == "riscv64" }},
	{ArchMIPS64, func(a, _ string) bool { return strings.HasPrefix(a, "mips64") || strings.HasPrefix(a, "mipsisa64") }},
	{ArchMIPS, func(a, _ string) bool { return strings.HasPrefix(a, "mips") }},
	{ArchX86_64, func(a, _ string) bool { return a == "x86_64" }},
	{ArchX86, func(a, _ string) bool { return a == "x86" || (len(a) == 4 && a[0] == 'i' && strings.HasSuffix(a, "86")) }},
	{ArchPPC64LE, func(a, _ string) bool { return a == "powerpc64le" || a == "ppc64le" }},
}

func libs(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

var archProfiles = map[ArchKind]ArchProfile{
	ArchAArch64: {
		ConfigureFlags:    []string{"--with-arch=armv8-a", "--with-abi=lp64"},
		HashStyle:         "gnu",
		DisabledLibraries: libs("libitm"),
	},
	ArchARMHardFloat: {
		ConfigureFlags:    []string{"--with-arch=armv7-a", "--with-float=hard", "--with-fpu=vfpv3-d16", "--with-mode=thumb"},
		HashStyle:         "gnu",
		DisabledLibraries: libs("libitm"),
	},
	ArchARM: {
		ConfigureFlags:    []string{"--with-arch=armv7-a", "--with-float=soft", "--with-mode=thumb"},
		HashStyle:         "gnu",
		DisabledLibraries: libs("libitm"),
	},
	ArchRISCV64: {
		ConfigureFlags:    []string{"--with-arch=rv64gc", "--with-abi=lp64d"},
		HashStyle:         "gnu",
		DisabledLibraries: libs("libitm"),
	},
	ArchMIPS64: {
		ConfigureFlags:    []string{"--with-arch=mips64r2", "--with-abi=64"},
		HashStyle:         "sysv",
		DisabledLibraries: libs("libitm"),
	},
	ArchMIPS: {
		ConfigureFlags:    []string{"--with-arch=mips32r2", "--with-abi=32"},
		HashStyle:         "sysv",
		DisabledLibraries: libs("libitm"),
	},
	ArchX86_64: {
		ConfigureFlags:    []string{"--with-arch=x86-64", "--with-tune=generic"},
		Sanitizer:         true,
		HashStyle:         "gnu",
		DisabledLibraries: libs("libquadmath"),
	},
	ArchX86: {
		ConfigureFlags:    []string{"--with-arch=i686", "--with-tune=generic"},
		HashStyle:         "gnu",
		DisabledLibraries: libs("libquadmath"),
	},
	ArchPPC64LE: {
		ConfigureFlags:    []string{"--with-cpu=power8", "--with-long-double-128"},
		HashStyle:         "gnu",
		DisabledLibraries: libs("libquadmath"),
	},
}

// classifyArch returns the first rule that accepts the triple.
func classifyArch(t Triple) ArchKind {
	arch, env := t.Arch(), t.Env()
	for _, r := range archRules {
		if r.match(arch, env) {
			return r.kind
		}
	}
	return ArchUnknown
}

// LookupArch returns the profile for the target's architecture segment.
func LookupArch(target Triple) (ArchProfile, error) {
	kind := classifyArch(target)
	p, ok := archProfiles[kind]
	if !ok {
		return ArchProfile{}, &ConfigurationError{
			Field: "target",
			Value: target.String(),
			Err:   fmt.Errorf("unsupported architecture %q", target.Arch()),
		}
	}
	p.Kind = kind
	p.ConfigureFlags = slices.Clone(p.ConfigureFlags)
	p.DisabledLibraries = maps.Clone(p.DisabledLibraries)
	return p, nil
}
