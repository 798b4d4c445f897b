package crossboot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStage1AndNativeNeedNothing(t *testing.T) {
	v := Validator{Probe: fakeProber{}}
	assert.NoError(t, v.Validate(mustResolve(t, "x86_64-linux-gnu", "", "aarch64-linux-ohos", ""), ToolchainPrefixes{}))
	assert.NoError(t, v.Validate(mustResolve(t, "x86_64-linux-gnu", "", "x86_64-linux-gnu", ""), ToolchainPrefixes{}))
}

func TestValidateCanadian(t *testing.T) {
	res := mustResolve(t, "x86_64-linux-gnu", "aarch64-linux-ohos", "aarch64-linux-ohos", "")

	err := Validator{Probe: fakeProber{}}.Validate(res, ToolchainPrefixes{})
	require.ErrorIs(t, err, ErrMissingPredecessor)
	var missing *MissingPredecessorError
	require.ErrorAs(t, err, &missing)
	assert.Empty(t, missing.Path)

	probe := fakeProber{}.add("/s1/bin", "aarch64-linux-ohos-gcc", "aarch64-linux-ohos-g++", "aarch64-linux-ohos-ar", "aarch64-linux-ohos-as")
	err = Validator{Probe: probe}.Validate(res, ToolchainPrefixes{Stage1: "/s1"})
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "/s1/bin/aarch64-linux-ohos-ld", missing.Path)
	assert.Contains(t, err.Error(), "/s1/bin/aarch64-linux-ohos-ld")

	probe.add("/s1/bin", "aarch64-linux-ohos-ld")
	assert.NoError(t, Validator{Probe: probe}.Validate(res, ToolchainPrefixes{Stage1: "/s1"}))
}

func TestValidateCanadianChecksTargetTools(t *testing.T) {
	res := mustResolve(t, "x86_64-linux-gnu", "aarch64-linux-ohos", "riscv64-linux-musl", "")
	probe := fakeProber{}.add("/s1/bin", "aarch64-linux-ohos-gcc", "aarch64-linux-ohos-g++", "aarch64-linux-ohos-ar", "aarch64-linux-ohos-as", "aarch64-linux-ohos-ld")

	err := Validator{Probe: probe}.Validate(res, ToolchainPrefixes{Stage1: "/s1"})
	var missing *MissingPredecessorError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "/s1/bin/riscv64-linux-musl-gcc", missing.Path)
}

func TestValidateStage3(t *testing.T) {
	res := mustResolve(t, "aarch64-linux-ohos", "", "aarch64-linux-ohos", "/s2")
	probe := fakeProber{}.add("/s2/bin", "gcc", "g++", "ar", "aarch64-linux-ohos-as")

	err := Validator{Probe: probe}.Validate(res, ToolchainPrefixes{Stage2: "/s2"})
	var missing *MissingPredecessorError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "ld", missing.Tool)
	assert.Equal(t, "/s2/bin/ld", missing.Path)

	probe.add("/s2/bin", "ld")
	assert.NoError(t, Validator{Probe: probe}.Validate(res, ToolchainPrefixes{Stage2: "/s2"}))
}

func TestFSProber(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir+"/plain", "x")
	assert.False(t, FSProber{}.Executable(dir+"/plain"))
	assert.False(t, FSProber{}.Executable(dir))
	assert.False(t, FSProber{}.Executable(dir+"/missing"))
}

func TestValidateRejectsInstallOverPredecessor(t *testing.T) {
	canadian := mustResolve(t, "x86_64-linux-gnu", "aarch64-linux-ohos", "aarch64-linux-ohos", "")
	stage3 := mustResolve(t, "aarch64-linux-ohos", "", "aarch64-linux-ohos", "/s2")

	testCases := []struct {
		name     string
		res      Resolution
		prefixes ToolchainPrefixes
		field    string
	}{
		{"install is stage1", canadian, ToolchainPrefixes{Stage1: "/opt/crossboot", Install: "/opt/crossboot/"}, "prefix"},
		{"binutils is stage1", canadian, ToolchainPrefixes{Stage1: "/s1", Install: "/opt/x", BinutilsInstall: "/s1/./"}, "binutils-prefix"},
		{"install is stage2", stage3, ToolchainPrefixes{Stage2: "/s2", Install: "/s2"}, "prefix"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validator{Probe: fakeProber{}}.Validate(tc.res, tc.prefixes)
			require.ErrorIs(t, err, ErrConfiguration)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}
