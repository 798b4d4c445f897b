package crossboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InstalledArtifact describes a component that is available to later steps.
type InstalledArtifact struct {
	Component Component
	// Prefix is the install prefix, or the in-tree location for prerequisites.
	Prefix string
	// Tool is the executable that proved the install.
	Tool string
	// Built is set when this call ran the build.
	Built bool
}

// Orchestrator sequences component builds. Every operation checks stamps
// and installed tools first, so repeating it does no work.
type Orchestrator struct {
	Sources  SourceProvider
	Patches  *PatchApplier
	Exec     BuildExecutor
	Composer Composer
	Probe    ToolProber
	Versions Versions

	BuildRoot    string
	LogDir       string
	PatchDir     string
	PrimaryPatch string
	PatchStrip   int
	Sysroot      string
	Languages    []string

	// patched holds components whose patches were tried in this run.
	patched map[Component]bool
}

func (o *Orchestrator) probe() ToolProber {
	if o.Probe == nil {
		return FSProber{}
	}
	return o.Probe
}

// EnsurePresent fetches, unpacks and patches a component's source.
func (o *Orchestrator) EnsurePresent(ctx context.Context, c Component) (SourceTree, error) {
	tree, err := o.Sources.Fetch(ctx, c, o.Versions.Of(c))
	if err != nil {
		return SourceTree{}, err
	}
	if tree.Component == "" {
		tree.Component = c
	}
	if o.Patches == nil || o.patched[c] {
		return tree, nil
	}
	if o.patched == nil {
		o.patched = make(map[Component]bool)
	}
	// a failed forward run leaves the tree half patched; never retry it
	o.patched[c] = true

	set, err := DiscoverPatches(o.PatchDir, c, o.PrimaryPatch)
	if err != nil {
		return SourceTree{}, fmt.Errorf("discover %s patches: %w", c, err)
	}
	if set.Len() == 0 {
		return tree, nil
	}
	n, err := o.Patches.Apply(ctx, tree, set, o.PatchStrip)
	if err != nil && !errors.Is(err, ErrPatchConflict) {
		return SourceTree{}, err
	}
	debugf("=> %s: %d of %d patches newly applied\n", c, n, set.Len())
	return tree, nil
}

// EnsurePrerequisites makes gmp, mpfr and mpc available inside the gcc tree
// and returns the gcc tree.
func (o *Orchestrator) EnsurePrerequisites(ctx context.Context) (SourceTree, error) {
	gcc, err := o.EnsurePresent(ctx, GCC)
	if err != nil {
		return SourceTree{}, err
	}
	for _, p := range prerequisites {
		tree, err := o.EnsurePresent(ctx, p)
		if err != nil {
			return SourceTree{}, err
		}
		if err := linkInto(tree.Dir, filepath.Join(gcc.Dir, p.String())); err != nil {
			return SourceTree{}, fmt.Errorf("link %s into gcc: %w", p, err)
		}
	}
	return gcc, nil
}

// linkInto points link at target. An existing directory at link is kept.
func linkInto(target, link string) error {
	fi, err := os.Lstat(link)
	if err == nil {
		if fi.Mode()&os.ModeSymlink == 0 {
			debugf("=> %s exists and is not a symlink, keeping it\n", link)
			return nil
		}
		if cur, _ := os.Readlink(link); cur == target {
			return nil
		}
		if err := os.Remove(link); err != nil {
			return err
		}
	}
	return os.Symlink(target, link)
}

// EnsureBuilt returns the installed artifact, building it only when this
// resolution has not installed it yet or its tools are gone.
func (o *Orchestrator) EnsureBuilt(ctx context.Context, c Component, res Resolution) (InstalledArtifact, error) {
	switch c {
	case GMP, MPFR, MPC:
		// built in-tree by gcc
		gcc, err := o.EnsurePrerequisites(ctx)
		if err != nil {
			return InstalledArtifact{}, err
		}
		return InstalledArtifact{Component: c, Prefix: filepath.Join(gcc.Dir, c.String())}, nil
	case Binutils, GCC:
		return o.Install(ctx, c, res)
	}
	return InstalledArtifact{}, fmt.Errorf("unknown component %q", c)
}

func (o *Orchestrator) installPrefix(c Component) string {
	if c == Binutils {
		return o.Composer.Prefixes.Binutils()
	}
	return o.Composer.Prefixes.Install
}

// installedTools are probed after install, triple-prefixed first.
var installedTools = map[Component][]string{
	Binutils: {"ld", "as"},
	GCC:      {"gcc"},
}

// probeInstalled returns the first probed tool when all of c's tools exist.
func (o *Orchestrator) probeInstalled(c Component, res Resolution) (string, bool) {
	bin := filepath.Join(o.installPrefix(c), "bin")
	first := ""
	for _, tool := range installedTools[c] {
		path := filepath.Join(bin, res.Target.Tool(tool))
		if !o.probe().Executable(path) {
			// native installs drop the prefix
			if res.IsCross() {
				return "", false
			}
			path = filepath.Join(bin, tool)
			if !o.probe().Executable(path) {
				return "", false
			}
		}
		if first == "" {
			first = path
		}
	}
	return first, first != ""
}

// BuildDir is where c is configured and built for res.
func (o *Orchestrator) BuildDir(c Component, res Resolution) string {
	return filepath.Join(o.BuildRoot, fmt.Sprintf("%s-%s", res.Stage, res.Target), c.String())
}

func (o *Orchestrator) configureArgs(c Component, res Resolution) []string {
	args := []string{
		"--prefix=" + o.installPrefix(c),
		"--build=" + res.Build.String(),
		"--host=" + res.Host.String(),
		"--target=" + res.Target.String(),
	}
	if o.Sysroot != "" {
		args = append(args, "--with-sysroot="+o.Sysroot)
	}
	args = append(args, "--disable-nls")

	switch c {
	case Binutils:
		args = append(args, "--disable-werror")
		args = append(args, res.Profile.BinutilsFlags()...)
		if res.Stage == Stage2Canadian {
			// build-machine plugins cannot load into a target-hosted linker
			args = append(args, "--disable-plugins")
		}
	case GCC:
		langs := o.Languages
		if len(langs) == 0 {
			langs = []string{"c", "c++"}
		}
		args = append(args, "--enable-languages="+strings.Join(langs, ","), "--disable-multilib")
		args = append(args, res.Profile.CompilerFlags()...)
	}
	return args
}

// sourceFor returns c's tree, with prerequisites linked for gcc.
func (o *Orchestrator) sourceFor(ctx context.Context, c Component, res Resolution) (SourceTree, error) {
	switch c {
	case Binutils:
		return o.EnsurePresent(ctx, Binutils)
	case GCC:
		// gcc configure probes for <target>-as and <target>-ld
		if _, err := o.EnsureBuilt(ctx, Binutils, res); err != nil {
			return SourceTree{}, err
		}
		return o.EnsurePrerequisites(ctx)
	}
	return SourceTree{}, fmt.Errorf("%s is built in-tree by gcc", c)
}

// Configure runs c's configure script unless it already ran with the same
// arguments.
func (o *Orchestrator) Configure(ctx context.Context, c Component, res Resolution) error {
	tree, err := o.sourceFor(ctx, c, res)
	if err != nil {
		return err
	}
	dir := o.BuildDir(c, res)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	args := o.configureArgs(c, res)
	stamp := filepath.Join(dir, ".stamp-configure")
	if stampMatches(stamp, args) {
		debugf("=> %s already configured in %s\n", c, dir)
		return nil
	}
	// a reconfigure invalidates the build and the install
	os.Remove(filepath.Join(dir, ".stamp-build"))
	os.Remove(filepath.Join(dir, ".stamp-install"))

	cmd := Command{Name: filepath.Join(tree.Dir, "configure"), Args: args, Dir: dir}
	if err := o.runStep(ctx, c, res, StepConfigure, cmd); err != nil {
		return err
	}
	return writeStamp(stamp, args)
}

// Build compiles c, configuring it first if needed.
func (o *Orchestrator) Build(ctx context.Context, c Component, res Resolution) error {
	if err := o.Configure(ctx, c, res); err != nil {
		return err
	}
	dir := o.BuildDir(c, res)
	stamp := filepath.Join(dir, ".stamp-build")
	if _, err := os.Stat(stamp); err == nil {
		debugf("=> %s already built in %s\n", c, dir)
		return nil
	}
	os.Remove(filepath.Join(dir, ".stamp-install"))
	if err := o.runStep(ctx, c, res, StepBuild, Command{Name: "make", Dir: dir}); err != nil {
		return err
	}
	return writeStamp(stamp, nil)
}

// Install installs c unless this build directory already installed it and
// its tools are still in the prefix.
func (o *Orchestrator) Install(ctx context.Context, c Component, res Resolution) (InstalledArtifact, error) {
	prefix := o.installPrefix(c)
	dir := o.BuildDir(c, res)
	stamp := filepath.Join(dir, ".stamp-install")
	if _, err := os.Stat(stamp); err == nil {
		if tool, ok := o.probeInstalled(c, res); ok {
			debugf("=> %s already installed: %s\n", c, tool)
			return InstalledArtifact{Component: c, Prefix: prefix, Tool: tool}, nil
		}
	}
	if err := o.Build(ctx, c, res); err != nil {
		return InstalledArtifact{}, err
	}

	cmd := Command{Name: "make", Args: []string{"install"}, Dir: dir, AsRoot: !prefixWritable(prefix)}
	if err := o.runStep(ctx, c, res, StepInstall, cmd); err != nil {
		return InstalledArtifact{}, err
	}

	tool, ok := o.probeInstalled(c, res)
	if !ok {
		return InstalledArtifact{}, &StepFailure{
			Component: c, Step: StepInstall, Dir: dir,
			Err: fmt.Errorf("%s/bin has no %s", prefix, res.Target.Tool(installedTools[c][0])),
		}
	}
	if err := writeStamp(stamp, nil); err != nil {
		return InstalledArtifact{}, err
	}
	step("%s installed to %s", c, prefix)
	return InstalledArtifact{Component: c, Prefix: prefix, Tool: tool, Built: true}, nil
}

func (o *Orchestrator) runStep(ctx context.Context, c Component, res Resolution, s Step, cmd Command) error {
	env, err := o.Composer.Compose(res, s)
	if err != nil {
		return err
	}
	cmd.Env = env
	if o.LogDir != "" {
		cmd.Log = logPath(o.LogDir, c, s)
	}

	step("%s: %s (%s)", c, s, res.Stage)
	if err := o.Exec.Run(ctx, cmd); err != nil {
		return &StepFailure{Component: c, Step: s, Dir: cmd.Dir, Log: cmd.Log, Err: err}
	}
	return nil
}

func stampMatches(path string, content []string) bool {
	data, err := os.ReadFile(path)
	return err == nil && string(data) == stampContent(content)
}

func stampContent(content []string) string {
	if len(content) == 0 {
		return ""
	}
	return strings.Join(content, "\n") + "\n"
}

func writeStamp(path string, content []string) error {
	return os.WriteFile(path, []byte(stampContent(content)), 0o644)
}
