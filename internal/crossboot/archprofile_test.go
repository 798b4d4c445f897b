package crossboot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupArchRuleOrder(t *testing.T) {
	testCases := map[string]ArchKind{
		"aarch64-linux-ohos":    ArchAArch64,
		"armv7hf-linux-ohos":    ArchARMHardFloat,
		"arm-linux-gnueabihf":   ArchARMHardFloat,
		"armv7a-linux-ohos":     ArchARM,
		"arm-linux-gnueabi":     ArchARM,
		"riscv64-linux-gnu":     ArchRISCV64,
		"mips64el-linux-gnu":    ArchMIPS64,
		"mipsel-linux-gnu":      ArchMIPS,
		"x86_64-linux-gnu":      ArchX86_64,
		"i686-linux-gnu":        ArchX86,
		"powerpc64le-linux-gnu": ArchPPC64LE,
	}
	for triple, want := range testCases {
		t.Run(triple, func(t *testing.T) {
			p, err := LookupArch(MustParseTriple(triple))
			require.NoError(t, err)
			assert.Equal(t, want, p.Kind)
		})
	}
}

func TestLookupArchUnknown(t *testing.T) {
	_, err := LookupArch(MustParseTriple("sparc64-linux-gnu"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSanitizerOnlyOnX86_64(t *testing.T) {
	for kind, p := range archProfiles {
		assert.Equal(t, kind == ArchX86_64, p.Sanitizer, kind.String())
	}

	p, err := LookupArch(MustParseTriple("x86_64-linux-gnu"))
	require.NoError(t, err)
	assert.Contains(t, p.CompilerFlags(), "--enable-libsanitizer")
	assert.Contains(t, p.CompilerFlags(), "--disable-libquadmath")

	p, err = LookupArch(MustParseTriple("aarch64-linux-ohos"))
	require.NoError(t, err)
	assert.Contains(t, p.CompilerFlags(), "--disable-libsanitizer")
	assert.Equal(t, []string{"--enable-default-hash-style=gnu"}, p.BinutilsFlags())
}

func TestLookupArchReturnsCopies(t *testing.T) {
	target := MustParseTriple("aarch64-linux-ohos")
	p, err := LookupArch(target)
	require.NoError(t, err)
	p.ConfigureFlags[0] = "--with-arch=bogus"
	p.DisabledLibraries["libgomp"] = struct{}{}

	again, err := LookupArch(target)
	require.NoError(t, err)
	assert.Equal(t, "--with-arch=armv8-a", again.ConfigureFlags[0])
	assert.Equal(t, []string{"libitm"}, again.Disabled())
}
