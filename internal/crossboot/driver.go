package crossboot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Pipeline runs the named commands against one set of settings.
type Pipeline struct {
	Settings Settings
	Sources  SourceProvider
	Exec     BuildExecutor
	Probe    ToolProber
	// Detect returns the local triple; nil uses DetectLocalTriple.
	Detect func() string
	// Publisher uploads packages; nil means publish is unavailable.
	Publisher publisher
}

type publisher interface {
	UploadLocalFile(ctx context.Context, key, filePath string) error
}

func (p *Pipeline) buildRoot() string  { return filepath.Join(p.Settings.WorkDir, "build") }
func (p *Pipeline) logDir() string     { return filepath.Join(p.Settings.WorkDir, "logs") }
func (p *Pipeline) sourcesDir() string { return filepath.Join(p.Settings.WorkDir, "src") }
func (p *Pipeline) distDir() string    { return filepath.Join(p.Settings.WorkDir, "dist") }

// Resolve resolves the configured triples.
func (p *Pipeline) Resolve() (Resolution, error) {
	return Resolve(ResolveOptions{
		Build:         p.Settings.Build,
		Host:          p.Settings.Host,
		Target:        p.Settings.Target,
		DefaultTarget: defaultTarget,
		Stage2Prefix:  p.Settings.Prefixes.Stage2,
		Detect:        p.Detect,
	})
}

func (p *Pipeline) composer() Composer {
	return Composer{
		Prefixes: p.Settings.Prefixes,
		Sysroot:  p.Settings.Sysroot,
		Jobs:     p.Settings.Jobs,
		Probe:    p.Probe,
	}
}

func (p *Pipeline) orchestrator() *Orchestrator {
	return &Orchestrator{
		Sources:      p.Sources,
		Patches:      &PatchApplier{Exec: p.Exec},
		Exec:         p.Exec,
		Composer:     p.composer(),
		Probe:        p.Probe,
		Versions:     p.Settings.Versions,
		BuildRoot:    p.buildRoot(),
		LogDir:       p.logDir(),
		PatchDir:     p.Settings.PatchDir,
		PrimaryPatch: p.Settings.PrimaryPatch,
		PatchStrip:   p.Settings.PatchStrip,
		Sysroot:      p.Settings.Sysroot,
		Languages:    p.Settings.Languages,
	}
}

// lock takes the install prefix lock, falling back to the work directory
// when the prefix cannot be created by this user.
func (p *Pipeline) lock() (*prefixLock, error) {
	l, err := lockPrefix(p.Settings.Prefixes.Install)
	if err == nil || errors.Is(err, ErrLocked) {
		return l, err
	}
	debugf("=> cannot lock %s (%v), locking %s instead\n", p.Settings.Prefixes.Install, err, p.Settings.WorkDir)
	return lockPrefix(p.Settings.WorkDir)
}

// gate resolves and validates before anything runs for the stage.
func (p *Pipeline) gate() (Resolution, error) {
	res, err := p.Resolve()
	if err != nil {
		return Resolution{}, err
	}
	if err := (Validator{Probe: p.Probe}).Validate(res, p.Settings.Prefixes); err != nil {
		return Resolution{}, err
	}
	return res, nil
}

// Run executes one pipeline command. Errors name the command that failed.
func (p *Pipeline) Run(ctx context.Context, command string, args []string) error {
	if err := p.run(ctx, command, args); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, command string, args []string) error {
	if command == "stage" {
		return p.printStage()
	}

	var (
		res Resolution
		err error
	)
	switch command {
	case "clean", "prepare_ndk", "package", "publish":
	case "prepare", "download_prereqs":
		// nothing is configured or built, so there is nothing to gate
		res, err = p.Resolve()
	case "binutils", "configure", "build", "install", "all":
		res, err = p.gate()
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}

	l, err := p.lock()
	if err != nil {
		return err
	}
	defer l.Release()

	o := p.orchestrator()
	switch command {
	case "clean":
		return p.clean(len(args) > 0 && (args[0] == "-sources" || args[0] == "--sources"))
	case "prepare_ndk":
		return p.prepareNDK(ctx)
	case "package":
		_, err := p.packagePrefix(args)
		return err
	case "publish":
		return p.publish(ctx, args)
	case "prepare":
		return p.prepare(ctx, o)
	case "download_prereqs":
		_, err := o.EnsurePrerequisites(ctx)
		return err
	case "binutils":
		_, err := o.EnsureBuilt(ctx, Binutils, res)
		return err
	case "configure":
		return o.Configure(ctx, GCC, res)
	case "build":
		return o.Build(ctx, GCC, res)
	case "install":
		_, err := o.EnsureBuilt(ctx, GCC, res)
		return err
	case "all":
		step("Bootstrapping %s toolchain for %s", res.Stage, res.Target)
		if err := p.prepare(ctx, o); err != nil {
			return err
		}
		if _, err := o.EnsureBuilt(ctx, Binutils, res); err != nil {
			return err
		}
		if err := o.Configure(ctx, GCC, res); err != nil {
			return err
		}
		if err := o.Build(ctx, GCC, res); err != nil {
			return err
		}
		art, err := o.EnsureBuilt(ctx, GCC, res)
		if err != nil {
			return err
		}
		step("Toolchain ready: %s", art.Tool)
		return nil
	}
	return nil
}

func (p *Pipeline) prepare(ctx context.Context, o *Orchestrator) error {
	if _, err := o.EnsurePresent(ctx, Binutils); err != nil {
		return err
	}
	_, err := o.EnsurePrerequisites(ctx)
	return err
}

func (p *Pipeline) clean(sources bool) error {
	dirs := []string{p.buildRoot()}
	if sources {
		dirs = append(dirs, p.sourcesDir())
	}
	for _, d := range dirs {
		step("Removing %s", d)
		if err := os.RemoveAll(d); err != nil {
			return err
		}
	}
	return nil
}

// printStage shows what a build would use without running anything.
func (p *Pipeline) printStage() error {
	res, err := p.Resolve()
	if err != nil {
		return err
	}
	colInfo.Printf("build:  %s\nhost:   %s\ntarget: %s\n", res.Build, res.Host, res.Target)
	colInfo.Printf("stage:  %s (cross %t)\n", res.Stage, res.IsCross())
	colInfo.Printf("arch:   %s (hash style %s, sanitizer %t)\n", res.Profile.Kind, res.Profile.HashStyle, res.Profile.Sanitizer)
	fmt.Printf("gcc flags: %s\n", strings.Join(res.Profile.CompilerFlags(), " "))

	if err := (Validator{Probe: p.Probe}).Validate(res, p.Settings.Prefixes); err != nil {
		warnf("Predecessor check failed: %v", err)
	}

	c := p.composer()
	for _, s := range []Step{StepConfigure, StepBuild, StepInstall} {
		b, err := c.Compose(res, s)
		if err != nil {
			return err
		}
		colNote.Printf("[%s]\n", s)
		for _, line := range b.Describe() {
			fmt.Println("  " + line)
		}
	}
	return p.printPatches()
}

// printPatches reports, per extracted component, whether its patches are in.
func (p *Pipeline) printPatches() error {
	for _, c := range allComponents {
		set, err := DiscoverPatches(p.Settings.PatchDir, c, p.Settings.PrimaryPatch)
		if err != nil {
			return err
		}
		tree := SourceTree{Component: c, Dir: filepath.Join(p.sourcesDir(), fmt.Sprintf("%s-%s", c, p.Settings.Versions.Of(c)))}
		if set.Len() == 0 || !populated(tree.Dir) {
			continue
		}
		state := "pending"
		if Applied(tree, set) {
			state = "applied"
		}
		colNote.Printf("patches %s: %d %s\n", c, set.Len(), state)
	}
	return nil
}

// prepareNDK downloads and unpacks the OpenHarmony NDK once.
func (p *Pipeline) prepareNDK(ctx context.Context) error {
	url := p.Settings.NDKURL
	if url == "" {
		return &ConfigurationError{Field: "CROSSBOOT_NDK_URL", Err: fmt.Errorf("not set")}
	}
	dir := p.Settings.NDKDir
	if dir == "" {
		dir = filepath.Join(p.Settings.WorkDir, "ndk")
	}
	if populated(dir) {
		step("NDK already present at %s", dir)
		return nil
	}

	archive := filepath.Join(p.Settings.WorkDir, "downloads", filepath.Base(url))
	if _, err := os.Stat(archive); err != nil {
		step("Downloading NDK %s", filepath.Base(url))
		if err := downloadFile(ctx, url, url, archive, downloadOptions{}); err != nil {
			return &FetchError{Component: "ndk", URL: url, Err: err}
		}
	}

	tp := &TarballProvider{}
	if _, err := tp.Extract(ctx, archive, dir); err != nil {
		return err
	}
	if sysroot := filepath.Join(dir, "sysroot"); populated(sysroot) && p.Settings.Sysroot == "" {
		colNote.Printf("Set CROSSBOOT_SYSROOT=%s to build against the NDK sysroot\n", sysroot)
	}
	return nil
}
