package crossboot

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Step is one phase of an autotools component build.
type Step string

const (
	StepConfigure Step = "configure"
	StepBuild     Step = "build"
	StepInstall   Step = "install"
)

// ToolchainPrefixes are the filesystem roots a pipeline reads from and installs into.
type ToolchainPrefixes struct {
	Stage1          string
	Stage2          string
	Install         string
	BinutilsInstall string
}

// Binutils returns the binutils install prefix, defaulting to Install.
func (p ToolchainPrefixes) Binutils() string {
	if p.BinutilsInstall != "" {
		return p.BinutilsInstall
	}
	return p.Install
}

// EnvironmentBundle is the complete environment for one step. It is built by
// the Composer and read-only afterwards; accessors return copies.
type EnvironmentBundle struct {
	vars        map[string]string
	pathPrepend []string
	// assignments are KEY=VALUE words appended to the step's command line
	// instead of being exported.
	assignments []string
	unset       []string
}

// Get returns a variable from the exported set.
func (b EnvironmentBundle) Get(key string) (string, bool) {
	v, ok := b.vars[key]
	return v, ok
}

// Lookup returns a value from the exported set or, failing that, from the
// command line assignments.
func (b EnvironmentBundle) Lookup(key string) (string, bool) {
	if v, ok := b.vars[key]; ok {
		return v, true
	}
	for _, a := range b.assignments {
		if k, v, ok := strings.Cut(a, "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

func (b EnvironmentBundle) Vars() map[string]string { return maps.Clone(b.vars) }

func (b EnvironmentBundle) PathPrepend() []string { return slices.Clone(b.pathPrepend) }

func (b EnvironmentBundle) Assignments() []string { return slices.Clone(b.assignments) }

func (b EnvironmentBundle) Unset() []string { return slices.Clone(b.unset) }

// BuildCC is the compiler used for programs that run on the build machine.
func (b EnvironmentBundle) BuildCC() string {
	v, _ := b.Lookup("CC_FOR_BUILD")
	return v
}

// HostCC is the compiler used for the programs being produced.
func (b EnvironmentBundle) HostCC() string {
	v, _ := b.Lookup("CC")
	return v
}

// SearchPath returns PATH as the child process will see it.
func (b EnvironmentBundle) SearchPath(basePath string) string {
	parts := slices.Clone(b.pathPrepend)
	if basePath != "" {
		parts = append(parts, basePath)
	}
	return strings.Join(parts, ":")
}

// Environ merges the bundle over base (typically os.Environ()). Scrubbed and
// overridden keys are removed from base; bundle keys are appended in sorted
// order so the result is deterministic.
func (b EnvironmentBundle) Environ(base []string) []string {
	drop := make(map[string]bool, len(b.unset)+len(b.vars)+1)
	for _, k := range b.unset {
		drop[k] = true
	}
	for k := range b.vars {
		drop[k] = true
	}
	drop["PATH"] = true

	basePath := ""
	env := make([]string, 0, len(base)+len(b.vars)+1)
	for _, e := range base {
		k, v, _ := strings.Cut(e, "=")
		if k == "PATH" {
			basePath = v
		}
		if drop[k] {
			continue
		}
		env = append(env, e)
	}

	for _, k := range slices.Sorted(maps.Keys(b.vars)) {
		env = append(env, k+"="+b.vars[k])
	}
	return append(env, "PATH="+b.SearchPath(basePath))
}

// Describe renders the bundle as shell assignments, one per line.
func (b EnvironmentBundle) Describe() []string {
	var lines []string
	if len(b.pathPrepend) > 0 {
		lines = append(lines, fmt.Sprintf("PATH='%s:$PATH'", strings.Join(b.pathPrepend, ":")))
	}
	for _, k := range slices.Sorted(maps.Keys(b.vars)) {
		v := strings.ReplaceAll(b.vars[k], "'", "'\\''")
		lines = append(lines, fmt.Sprintf("%s='%s'", k, v))
	}
	for _, a := range b.assignments {
		lines = append(lines, "(argument) "+a)
	}
	for _, k := range b.unset {
		lines = append(lines, "unset "+k)
	}
	return lines
}

// toolVars maps make variables to the tool they name.
var toolVars = []struct{ name, tool string }{
	{"CC", "gcc"},
	{"CXX", "g++"},
	{"AR", "ar"},
	{"AS", "as"},
	{"LD", "ld"},
	{"NM", "nm"},
	{"RANLIB", "ranlib"},
	{"STRIP", "strip"},
	{"OBJCOPY", "objcopy"},
	{"OBJDUMP", "objdump"},
}

// stdCacheVars assert language support for a host compiler whose output
// cannot be executed at configure time.
var stdCacheVars = map[string]string{
	"ac_cv_prog_cc_c99":     "none needed",
	"ac_cv_prog_cc_c11":     "none needed",
	"ac_cv_prog_cxx_cxx11":  "none needed",
	"ac_cv_prog_cxx_stdcxx": "none needed",
}

// libtoolCacheVars replace libtool checks that would run target binaries.
var libtoolCacheVars = map[string]map[string]string{
	"ohos": {
		"lt_cv_sys_lib_dlsearch_path_spec":  "/lib /usr/lib /system/lib",
		"lt_cv_sys_lib_search_path_spec":    "/lib /usr/lib",
		"lt_cv_deplibs_check_method":        "pass_all",
		"lt_cv_nm_interface":                "BSD nm",
		"lt_cv_shlibpath_overrides_runpath": "no",
		"ac_cv_func_malloc_0_nonnull":       "yes",
		"ac_cv_func_realloc_0_nonnull":      "yes",
	},
	"musl": {
		"lt_cv_sys_lib_dlsearch_path_spec":  "/lib /usr/lib",
		"lt_cv_sys_lib_search_path_spec":    "/lib /usr/lib",
		"lt_cv_deplibs_check_method":        "pass_all",
		"lt_cv_nm_interface":                "BSD nm",
		"lt_cv_shlibpath_overrides_runpath": "no",
	},
}

// Composer produces an EnvironmentBundle per (stage, step).
type Composer struct {
	Prefixes ToolchainPrefixes
	Sysroot  string
	Jobs     int
	// LocalCC and LocalCXX name the build machine's own compilers.
	LocalCC  string
	LocalCXX string
	// NativeToolDir anchors build-time compilers in a Canadian cross.
	NativeToolDir string
	Probe         ToolProber
}

func (c Composer) localCC() string {
	if c.LocalCC != "" {
		return c.LocalCC
	}
	return "gcc"
}

func (c Composer) localCXX() string {
	if c.LocalCXX != "" {
		return c.LocalCXX
	}
	return "g++"
}

// anchored resolves a compiler name inside the native tool directory.
func (c Composer) anchored(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	dir := c.NativeToolDir
	if dir == "" {
		dir = nativeToolDir
	}
	return filepath.Join(dir, name)
}

// Compose never touches the process environment; callers hand the bundle
// to the executor explicitly.
func (c Composer) Compose(res Resolution, step Step) (EnvironmentBundle, error) {
	b := EnvironmentBundle{vars: map[string]string{
		"LC_ALL":       "C",
		"CONFIG_SHELL": "/bin/bash",
	}}
	if step != StepConfigure && c.Jobs > 0 {
		b.vars["MAKEFLAGS"] = fmt.Sprintf("-j%d", c.Jobs)
	}
	if c.Sysroot != "" {
		b.vars["CROSSBOOT_SYSROOT"] = c.Sysroot
	}

	switch res.Stage {
	case Stage1Cross:
		b.pathPrepend = []string{filepath.Join(c.Prefixes.Binutils(), "bin")}
		b.vars["CC"] = c.localCC()
		b.vars["CXX"] = c.localCXX()
		b.vars["CC_FOR_BUILD"] = c.localCC()
		b.vars["CXX_FOR_BUILD"] = c.localCXX()

	case Stage2Canadian:
		if c.Prefixes.Stage1 == "" {
			return EnvironmentBundle{}, &MissingPredecessorError{Stage: res.Stage, Tool: "stage-1"}
		}
		b.pathPrepend = []string{filepath.Join(c.Prefixes.Stage1, "bin")}
		for _, tv := range toolVars {
			b.vars[tv.name] = res.Host.Tool(tv.tool)
			b.vars[tv.name+"_FOR_TARGET"] = res.Target.Tool(tv.tool)
		}
		b.vars["GCC_FOR_TARGET"] = res.Target.Tool("gcc")
		// Exporting these lets parallel sub-configures of the in-tree
		// prerequisites race on them; they travel as arguments only.
		b.assignments = []string{
			"CC_FOR_BUILD=" + c.anchored(c.localCC()),
			"CXX_FOR_BUILD=" + c.anchored(c.localCXX()),
		}
		b.unset = []string{"CC_FOR_BUILD", "CXX_FOR_BUILD"}
		maps.Copy(b.vars, stdCacheVars)

	case Stage3Native:
		if c.Prefixes.Stage2 == "" {
			return EnvironmentBundle{}, &MissingPredecessorError{Stage: res.Stage, Tool: "stage-2"}
		}
		bin := filepath.Join(c.Prefixes.Stage2, "bin")
		b.pathPrepend = []string{bin, filepath.Join(c.Prefixes.Binutils(), "bin")}
		for _, tv := range toolVars {
			name := c.nativeToolName(bin, res.Host, tv.tool)
			b.vars[tv.name] = name
			b.vars[tv.name+"_FOR_TARGET"] = name
		}
		b.vars["GCC_FOR_TARGET"] = b.vars["CC_FOR_TARGET"]
		b.vars["CC_FOR_BUILD"] = b.vars["CC"]
		b.vars["CXX_FOR_BUILD"] = b.vars["CXX"]

	default:
		b.pathPrepend = []string{filepath.Join(c.Prefixes.Binutils(), "bin")}
		for _, v := range []string{"CC", "CC_FOR_BUILD", "CC_FOR_TARGET", "GCC_FOR_TARGET"} {
			b.vars[v] = c.localCC()
		}
		for _, v := range []string{"CXX", "CXX_FOR_BUILD", "CXX_FOR_TARGET"} {
			b.vars[v] = c.localCXX()
		}
	}

	if step != StepInstall && res.Target != res.Build {
		if lt, ok := libtoolCacheVars[res.Target.Env()]; ok {
			maps.Copy(b.vars, lt)
		}
	}
	return b, nil
}

// nativeToolName prefers the unprefixed tool in dir and falls back to the
// triple-prefixed one.
func (c Composer) nativeToolName(dir string, t Triple, tool string) string {
	probe := c.Probe
	if probe == nil {
		probe = FSProber{}
	}
	if probe.Executable(filepath.Join(dir, tool)) {
		return tool
	}
	return t.Tool(tool)
}
