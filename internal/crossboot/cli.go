package crossboot

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: crossboot <command> [flags]")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"prepare", "", "Fetch, extract and patch binutils, gcc and its prerequisites"},
		{"prepare_ndk", "", "Download and unpack the OpenHarmony NDK"},
		{"download_prereqs", "", "Fetch gmp, mpfr and mpc and link them into the gcc tree"},
		{"binutils", "", "Build and install binutils if missing"},
		{"configure", "", "Configure gcc"},
		{"build", "", "Build gcc"},
		{"install", "", "Install gcc"},
		{"all", "", "prepare, binutils, configure, build and install"},
		{"clean", "[-sources]", "Remove build directories (and extracted sources)"},
		{"stage", "", "Show the resolved triples, stage and per-step environment"},
		{"log", "[component step]", "View a step log"},
		{"package", "[-xz]", "Archive the install prefix"},
		{"publish", "", "Upload the package to R2"},
		{"version", "", "Version information"},
	}

	maxLen := 0
	for _, c := range cmds {
		if n := len(c.Cmd) + len(c.Args) + 1; n > maxLen {
			maxLen = n
		}
	}
	for _, c := range cmds {
		usage := c.Cmd
		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			usage += " " + c.Args
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}
		fmt.Print(strings.Repeat(" ", maxLen+4-len(usage)))
		color.Info.Println(c.Desc)
	}

	fmt.Println()
	color.Info.Println("Flags:")
	newFlagSet("help", &Settings{}, os.Stdout).PrintDefaults()
}

// newFlagSet binds the pipeline flags to s. Values already in s are the
// defaults, so flags override config and environment.
func newFlagSet(name string, s *Settings, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&s.Target, "target", s.Target, "Target triple")
	fs.StringVar(&s.Host, "host", s.Host, "Host triple (defaults to build)")
	fs.StringVar(&s.Build, "build", s.Build, "Build triple (defaults to the local machine)")
	fs.StringVar(&s.Prefixes.Install, "prefix", s.Prefixes.Install, "Install prefix")
	fs.StringVar(&s.Prefixes.BinutilsInstall, "binutils-prefix", s.Prefixes.BinutilsInstall, "Binutils install prefix (defaults to -prefix)")
	fs.StringVar(&s.Sysroot, "sysroot", s.Sysroot, "Target sysroot")
	fs.StringVar(&s.Prefixes.Stage1, "stage1", s.Prefixes.Stage1, "Stage-1 cross toolchain prefix")
	fs.StringVar(&s.Prefixes.Stage2, "stage2", s.Prefixes.Stage2, "Stage-2 native toolchain prefix")
	fs.IntVar(&s.Jobs, "jobs", s.Jobs, "Parallel make jobs")
	fs.Func("languages", "Comma separated gcc front ends (default c,c++)", func(v string) error {
		s.Languages = splitList(v)
		return nil
	})
	fs.StringVar(&s.WorkDir, "workdir", s.WorkDir, "Working directory for sources, builds and logs")
	fs.StringVar(&s.PatchDir, "patches", s.PatchDir, "Patch directory (<dir>/<component>/*.patch)")
	fs.BoolVar(&s.Debug, "debug", s.Debug, "Print debug output")
	// parsed before the others; accepted here so it is not rejected
	fs.String("config", "", "Configuration file")
	return fs
}

// splitConfigFlag pulls -config out of args ahead of flag parsing.
func splitConfigFlag(args []string) string {
	for i, a := range args {
		if !strings.HasPrefix(a, "-") {
			continue
		}
		name := strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Main is the CLI entrypoint.
func Main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling the running step\n", sig)
			cancel()
			select {
			case <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Println("Second interrupt received. Forcing immediate exit.")
				os.Exit(130)
			case <-time.After(10 * time.Second):
			}
		case <-ctx.Done():
		}
	}()

	if len(argv) < 1 {
		printHelp()
		return 0
	}
	command, args := argv[0], argv[1:]

	switch command {
	case "help", "-h", "--help":
		printHelp()
		return 0
	case "version", "--version":
		colNote.Printf("crossboot %s (%s) built %s\n", version, goArch, buildDate)
		return 0
	}

	path := configPath()
	if c := splitConfigFlag(args); c != "" {
		path = c
	}
	cfg, err := loadConfig(path)
	if err != nil {
		colError.Printf("Error reading %s: %v\n", path, err)
		return 1
	}
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		colError.Printf("Error: %v\n", err)
		return 1
	}

	fs := newFlagSet(command, &settings, os.Stderr)
	// command specific switches are handed on to the pipeline as arguments
	extra := map[string]*bool{}
	switch command {
	case "clean":
		extra["sources"] = fs.Bool("sources", false, "Also remove extracted sources")
	case "package", "publish":
		extra["xz"] = fs.Bool("xz", false, "Compress with xz instead of zstd")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	rest := fs.Args()
	for name, set := range extra {
		if *set {
			rest = append([]string{"-" + name}, rest...)
		}
	}
	Debug = settings.Debug
	if abs, err := filepath.Abs(settings.WorkDir); err == nil {
		settings.WorkDir = abs
	}

	if command == "log" {
		if err := showLog(filepath.Join(settings.WorkDir, "logs"), rest); err != nil {
			colError.Printf("Error: %v\n", err)
			return 1
		}
		return 0
	}

	p, err := newPipeline(ctx, settings)
	if err != nil {
		colError.Printf("Error: %v\n", err)
		return 1
	}
	if err := p.Run(ctx, command, rest); err != nil {
		colArrow.Print("-> ")
		colError.Printf("%v\n", err)
		return 1
	}
	return 0
}

// newPipeline wires the real collaborators.
func newPipeline(ctx context.Context, s Settings) (*Pipeline, error) {
	sums, err := LoadChecksums(filepath.Join(s.WorkDir, "checksums"))
	if err != nil {
		return nil, fmt.Errorf("load checksums: %w", err)
	}
	provider := &TarballProvider{
		SourcesDir:  filepath.Join(s.WorkDir, "src"),
		DownloadDir: filepath.Join(s.WorkDir, "downloads"),
		Mirror:      s.GnuMirror,
		Checksums:   sums,
	}
	p := &Pipeline{
		Settings: s,
		Sources:  provider,
		Exec:     NewExecutor(s.Idle),
		Probe:    FSProber{},
	}

	r2, err := NewR2Client(ctx, s.Raw)
	switch {
	case err == nil:
		provider.Remote = r2
		p.Publisher = r2
	case !errors.Is(err, errNoR2):
		warnf("R2 mirror disabled: %v", err)
	}
	return p, nil
}

// showLog pages one step log, or lists the logs when no step is named.
func showLog(logDir string, args []string) error {
	if len(args) < 2 {
		logs, err := listLogs(logDir)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			return fmt.Errorf("no logs in %s", logDir)
		}
		for _, l := range logs {
			fmt.Println(l)
		}
		return nil
	}

	c, err := ParseComponent(args[0])
	if err != nil {
		return err
	}
	path, err := findLog(logDir, c, Step(args[1]))
	if err != nil {
		return err
	}
	lines, err := readLogLines(path)
	if err != nil {
		return err
	}
	return RunPager(filepath.Base(path), lines)
}
