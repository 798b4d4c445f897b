package crossboot

import (
	"fmt"
	"strings"
)

// Component names one source package of the toolchain.
type Component string

const (
	Binutils Component = "binutils"
	GMP      Component = "gmp"
	MPFR     Component = "mpfr"
	MPC      Component = "mpc"
	GCC      Component = "gcc"
)

// prerequisites are linked into the gcc tree and built in-tree.
var prerequisites = []Component{GMP, MPFR, MPC}

// allComponents lists every component in fetch order.
var allComponents = []Component{Binutils, GMP, MPFR, MPC, GCC}

var defaultVersions = map[Component]string{
	Binutils: "2.42",
	GMP:      "6.3.0",
	MPFR:     "4.2.1",
	MPC:      "1.3.1",
	GCC:      "14.2.0",
}

func (c Component) String() string { return string(c) }

// ParseComponent accepts a component name as typed on the command line.
func ParseComponent(s string) (Component, error) {
	c := Component(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := defaultVersions[c]; !ok {
		return "", fmt.Errorf("unknown component %q", s)
	}
	return c, nil
}

// ArchiveName is the release tarball file name.
func (c Component) ArchiveName(version string) string {
	ext := ".tar.xz"
	if c == MPC {
		ext = ".tar.gz"
	}
	return fmt.Sprintf("%s-%s%s", c, version, ext)
}

// SourceURL is the canonical GNU location of the release tarball.
func (c Component) SourceURL(version string) string {
	if c == GCC {
		return fmt.Sprintf("%s/gcc/gcc-%s/%s", gnuOriginalURL, version, c.ArchiveName(version))
	}
	return fmt.Sprintf("%s/%s/%s", gnuOriginalURL, c, c.ArchiveName(version))
}

// Versions selects the release of each component.
type Versions map[Component]string

// Of returns the configured version, or the default.
func (v Versions) Of(c Component) string {
	if s := v[c]; s != "" {
		return s
	}
	return defaultVersions[c]
}
