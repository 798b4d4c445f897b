package crossboot

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Command is one invocation of an external build tool.
type Command struct {
	Name string
	Args []string
	// Env is applied on top of the inherited environment; its Assignments
	// are appended to Args.
	Env EnvironmentBundle
	Dir string
	// Log, when set, receives a copy of the output.
	Log string
	// Quiet discards output that is not logged.
	Quiet  bool
	AsRoot bool
}

// Argv is the full argument list including command line assignments.
func (c Command) Argv() []string {
	return append(append([]string{}, c.Args...), c.Env.Assignments()...)
}

// BuildExecutor runs a command to completion.
type BuildExecutor interface {
	Run(ctx context.Context, c Command) error
}

// Executor runs commands as child processes in their own process group,
// elevating through sudo -E for commands marked AsRoot.
type Executor struct {
	Stdout io.Writer
	Stderr io.Writer
	// ApplyIdlePriority wraps commands in nice -n 19.
	ApplyIdlePriority bool
	// BaseEnv defaults to os.Environ().
	BaseEnv []string
}

// NewExecutor returns an Executor writing to the terminal.
func NewExecutor(idle bool) *Executor {
	return &Executor{Stdout: os.Stdout, Stderr: os.Stderr, ApplyIdlePriority: idle}
}

// ensureSudo refreshes the sudo ticket, prompting on the terminal if needed.
func ensureSudo(ctx context.Context) error {
	check := exec.CommandContext(ctx, "sudo", "-nv")
	check.Stdout = io.Discard
	check.Stderr = io.Discard
	if err := check.Run(); err == nil {
		return nil
	}

	step("Sudo ticket has expired. Re-authenticating")
	cmd := exec.CommandContext(ctx, "sudo", "-v")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sudo re-authentication failed: %w", err)
	}
	return nil
}

func (e *Executor) Run(ctx context.Context, c Command) error {
	base := e.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	env := c.Env.Environ(base)

	path := c.Name
	args := c.Argv()

	if e.ApplyIdlePriority {
		args = append([]string{"-n", "19", path}, args...)
		path = "nice"
	}

	if c.AsRoot && os.Geteuid() != 0 {
		if err := ensureSudo(ctx); err != nil {
			return err
		}
		// sudo resets PATH to secure_path even with -E
		args = append([]string{"-E", "env", "PATH=" + lookupEnv(env, "PATH"), path}, args...)
		path = "sudo"
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = c.Dir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, stderr := e.Stdout, e.Stderr
	if stdout == nil || c.Quiet {
		stdout = io.Discard
	}
	if stderr == nil || c.Quiet {
		stderr = io.Discard
	}

	var log *stepLog
	if c.Log != "" {
		var err error
		if log, err = openStepLog(c.Log); err != nil {
			return err
		}
		fmt.Fprintf(log, "## %s %v\n## in %s\n", c.Name, c.Argv(), c.Dir)
		for _, line := range c.Env.Describe() {
			fmt.Fprintf(log, "## %s\n", line)
		}
		stdout = io.MultiWriter(stdout, log)
		stderr = io.MultiWriter(stderr, log)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	debugf("=> exec %s %v (dir %s)\n", path, args, c.Dir)
	if err := cmd.Start(); err != nil {
		if log != nil {
			log.Finish(false)
		}
		return fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	pgid := cmd.Process.Pid
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			unix.Kill(-pgid, unix.SIGKILL)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	if waitErr != nil && ctx.Err() != nil {
		time.Sleep(100 * time.Millisecond)
		waitErr = fmt.Errorf("command aborted: %w", ctx.Err())
	}
	if log != nil {
		if err := log.Finish(waitErr == nil); err != nil && waitErr == nil {
			debugf("failed to compress %s: %v\n", c.Log, err)
		}
	}
	return waitErr
}

func lookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}

// prefixWritable reports whether the current user can create files under
// dir, walking up to the nearest existing ancestor.
func prefixWritable(dir string) bool {
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			return unix.Access(d, unix.W_OK) == nil
		}
		if d == filepath.Dir(d) {
			return false
		}
	}
}
