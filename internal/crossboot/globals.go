package crossboot

import (
	"runtime"

	"github.com/gookit/color"
)

// Global variables
var (
	Debug           bool
	ConfigFile      = "/etc/crossboot.conf"
	gnuOriginalURL  = "https://ftp.gnu.org/gnu"
	defaultGnuURL   = "https://mirrors.kernel.org/gnu"
	defaultTarget   = "aarch64-linux-ohos"
	nativeToolDir   = "/usr/bin"
	version         = "dev"     // overridden at build time
	buildDate       = "unknown" // overridden at build time
	goArch          = runtime.GOARCH
	lockFileName    = ".crossboot.lock"
	patchMarkerName = ".crossboot-patches"
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
