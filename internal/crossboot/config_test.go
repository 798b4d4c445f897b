package crossboot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFromConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crossboot.conf")
	writeFile(t, path, `# crossboot
CROSSBOOT_TARGET=riscv64-linux-musl
CROSSBOOT_PREFIX="/opt/rv"
CROSSBOOT_JOBS=3
CROSSBOOT_GCC_VERSION=13.3.0
CROSSBOOT_LANGUAGES=c, c++ fortran
GNU_MIRROR=https://mirror.example/gnu/
not a setting
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	mergeEnvOverrides(cfg, []string{"CROSSBOOT_JOBS=5", "R2_BUCKET_NAME=tools", "HOME=/root"})

	s, err := settingsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "riscv64-linux-musl", s.Target)
	assert.Equal(t, "/opt/rv", s.Prefixes.Install)
	assert.Equal(t, "/opt/rv", s.Prefixes.Binutils())
	assert.Equal(t, 5, s.Jobs)
	assert.Equal(t, []string{"c", "c++", "fortran"}, s.Languages)
	assert.Equal(t, "13.3.0", s.Versions.Of(GCC))
	assert.Equal(t, defaultVersions[Binutils], s.Versions.Of(Binutils))
	assert.Equal(t, "https://mirror.example/gnu", s.GnuMirror)
	assert.Equal(t, "tools", s.Raw["R2_BUCKET_NAME"])
	assert.NotContains(t, s.Raw, "HOME")
}

func TestSettingsDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.conf"))
	require.NoError(t, err)
	cfg.Values = map[string]string{}

	s, err := settingsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, defaultTarget, s.Target)
	assert.Equal(t, "/opt/crossboot", s.Prefixes.Install)
	assert.Equal(t, "/var/tmp/crossboot/patches", s.PatchDir)
	assert.Equal(t, "%s-ohos.patch", s.PrimaryPatch)
	assert.Equal(t, 1, s.PatchStrip)
	assert.Equal(t, []string{"c", "c++"}, s.Languages)
	assert.Positive(t, s.Jobs)
}

func TestSettingsRejectBadNumbers(t *testing.T) {
	for key, val := range map[string]string{
		"CROSSBOOT_JOBS":        "0",
		"CROSSBOOT_PATCH_STRIP": "-1",
	} {
		_, err := settingsFromConfig(&Config{Values: map[string]string{key: val}})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr, key)
		assert.Equal(t, key, cfgErr.Field)
		assert.ErrorIs(t, err, ErrConfiguration)
	}
}

func TestNewFlagSetOverridesSettings(t *testing.T) {
	s := Settings{Target: "aarch64-linux-ohos", Jobs: 4}
	fs := newFlagSet("all", &s, nil)
	require.NoError(t, fs.Parse([]string{"-target", "x86_64-linux-gnu", "-languages", "c", "-config", "/x.conf", "extra"}))
	assert.Equal(t, "x86_64-linux-gnu", s.Target)
	assert.Equal(t, 4, s.Jobs)
	assert.Equal(t, []string{"c"}, s.Languages)
	assert.Equal(t, []string{"extra"}, fs.Args())

	assert.Equal(t, "/x.conf", splitConfigFlag([]string{"-target", "t", "-config", "/x.conf"}))
	assert.Equal(t, "/y.conf", splitConfigFlag([]string{"--config=/y.conf"}))
	assert.Empty(t, splitConfigFlag([]string{"-target", "t"}))
}
