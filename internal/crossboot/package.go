package crossboot

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// packagePrefix archives the install prefix into <workdir>/dist.
func (p *Pipeline) packagePrefix(args []string) (string, error) {
	fs := flag.NewFlagSet("package", flag.ContinueOnError)
	useXZ := fs.Bool("xz", false, "Compress with xz instead of zstd")
	if err := fs.Parse(args); err != nil {
		return "", err
	}

	res, err := p.Resolve()
	if err != nil {
		return "", err
	}
	prefix := p.Settings.Prefixes.Install
	if !hasInstall(prefix) {
		return "", fmt.Errorf("install prefix %s is empty, nothing to package", prefix)
	}

	ext := ".tar.zst"
	if *useXZ {
		ext = ".tar.xz"
	}
	if err := os.MkdirAll(p.distDir(), 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(p.distDir(), fmt.Sprintf("crossboot-%s-%s%s", res.Target, res.Stage, ext))

	step("Packaging %s", prefix)
	tmp := out + ".tmp"
	if err := createTarball(prefix, tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, out); err != nil {
		return "", err
	}
	compiler := "bin/" + res.Target.Tool("gcc")
	if ok, err := tarballHas(out, compiler); err != nil {
		return "", fmt.Errorf("verify %s: %w", out, err)
	} else if !ok {
		warnf("Warning: %s does not contain %s", filepath.Base(out), compiler)
	}
	if sum, err := ComputeChecksum(out); err == nil {
		colNote.Printf("%s  %s\n", sum, filepath.Base(out))
	}
	step("Package created: %s", out)
	return out, nil
}

// hasInstall reports whether prefix holds anything besides the prefix lock.
func hasInstall(prefix string) bool {
	entries, err := os.ReadDir(prefix)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() != lockFileName {
			return true
		}
	}
	return false
}

// publish uploads the package for the current resolution to toolchains/.
func (p *Pipeline) publish(ctx context.Context, args []string) error {
	if p.Publisher == nil {
		return errNoR2
	}
	res, err := p.Resolve()
	if err != nil {
		return err
	}

	var file string
	for _, ext := range []string{".tar.zst", ".tar.xz"} {
		candidate := filepath.Join(p.distDir(), fmt.Sprintf("crossboot-%s-%s%s", res.Target, res.Stage, ext))
		if _, err := os.Stat(candidate); err == nil {
			file = candidate
			break
		}
	}
	if file == "" {
		if file, err = p.packagePrefix(args); err != nil {
			return err
		}
	}

	key := "toolchains/" + filepath.Base(file)
	step("Uploading %s", key)
	if err := p.Publisher.UploadLocalFile(ctx, key, file); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	step("Published %s", key)
	return nil
}
