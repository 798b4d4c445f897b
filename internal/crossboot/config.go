package crossboot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Config holds raw KEY=VALUE settings from the config file and environment.
type Config struct {
	Values map[string]string
}

// loadConfig reads a KEY=VALUE file. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			cfg.Values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	mergeEnvOverrides(cfg, os.Environ())
	return cfg, nil
}

// mergeEnvOverrides lays CROSSBOOT_*, R2_* and GNU_MIRROR from environ over cfg.
func mergeEnvOverrides(cfg *Config, environ []string) {
	for _, env := range environ {
		key, val, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(key, "CROSSBOOT_") || strings.HasPrefix(key, "R2_") || key == "GNU_MIRROR" {
			cfg.Values[key] = val
		}
	}
}

// configPath honours CROSSBOOT_ROOT the way the tool's other paths do.
func configPath() string {
	if root := os.Getenv("CROSSBOOT_ROOT"); root != "" {
		return filepath.Join(root, "etc", "crossboot", "crossboot.conf")
	}
	return ConfigFile
}

// Settings are the typed, resolved pipeline parameters.
type Settings struct {
	Build, Host, Target string
	Prefixes            ToolchainPrefixes
	Sysroot             string
	Jobs                int
	Languages           []string
	WorkDir             string
	PatchDir            string
	// PrimaryPatch is a format string receiving the component name.
	PrimaryPatch string
	PatchStrip   int
	Versions     Versions
	GnuMirror    string
	NDKURL       string
	NDKDir       string
	Idle         bool
	Debug        bool
	// Raw keeps every value for collaborators such as the R2 client.
	Raw map[string]string
}

// settingsFromConfig applies defaults and parses numeric and boolean keys.
func settingsFromConfig(cfg *Config) (Settings, error) {
	v := cfg.Values
	s := Settings{
		Build:  v["CROSSBOOT_BUILD"],
		Host:   v["CROSSBOOT_HOST"],
		Target: v["CROSSBOOT_TARGET"],
		Prefixes: ToolchainPrefixes{
			Stage1:          v["CROSSBOOT_STAGE1_PREFIX"],
			Stage2:          v["CROSSBOOT_STAGE2_PREFIX"],
			Install:         v["CROSSBOOT_PREFIX"],
			BinutilsInstall: v["CROSSBOOT_BINUTILS_PREFIX"],
		},
		Sysroot:      v["CROSSBOOT_SYSROOT"],
		WorkDir:      v["CROSSBOOT_WORKDIR"],
		PatchDir:     v["CROSSBOOT_PATCH_DIR"],
		PrimaryPatch: v["CROSSBOOT_PRIMARY_PATCH"],
		GnuMirror:    v["GNU_MIRROR"],
		NDKURL:       v["CROSSBOOT_NDK_URL"],
		NDKDir:       v["CROSSBOOT_NDK_DIR"],
		Idle:         v["CROSSBOOT_IDLE"] == "1",
		Debug:        v["CROSSBOOT_DEBUG"] == "1",
		Versions:     Versions{},
		Raw:          v,
	}

	if s.Target == "" {
		s.Target = defaultTarget
	}
	if s.Prefixes.Install == "" {
		s.Prefixes.Install = "/opt/crossboot"
	}
	if s.WorkDir == "" {
		s.WorkDir = "/var/tmp/crossboot"
	}
	if s.PatchDir == "" {
		s.PatchDir = filepath.Join(s.WorkDir, "patches")
	}
	if s.PrimaryPatch == "" {
		s.PrimaryPatch = "%s-ohos.patch"
	}
	if s.GnuMirror == "" {
		s.GnuMirror = defaultGnuURL
	}
	s.GnuMirror = strings.TrimRight(s.GnuMirror, "/")

	s.Jobs = runtime.NumCPU()
	if j := v["CROSSBOOT_JOBS"]; j != "" {
		n, err := strconv.Atoi(j)
		if err != nil || n < 1 {
			return s, &ConfigurationError{Field: "CROSSBOOT_JOBS", Value: j, Err: fmt.Errorf("must be a positive integer")}
		}
		s.Jobs = n
	}

	s.PatchStrip = 1
	if p := v["CROSSBOOT_PATCH_STRIP"]; p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return s, &ConfigurationError{Field: "CROSSBOOT_PATCH_STRIP", Value: p, Err: fmt.Errorf("must be a non-negative integer")}
		}
		s.PatchStrip = n
	}

	s.Languages = []string{"c", "c++"}
	if l := v["CROSSBOOT_LANGUAGES"]; l != "" {
		s.Languages = splitList(l)
	}

	for _, c := range allComponents {
		key := "CROSSBOOT_" + strings.ToUpper(c.String()) + "_VERSION"
		if ver := v[key]; ver != "" {
			s.Versions[c] = ver
		}
	}
	return s, nil
}

// splitList splits a comma or whitespace separated list.
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
