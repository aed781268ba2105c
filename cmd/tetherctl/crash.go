package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/arloliu/tether"
)

// envNoCrashHandler disables installCrashHandler when set to any value.
const envNoCrashHandler = "TETHER_DONT_INSTALL_CRASH_HANDLER"

// installCrashHandler makes fatal panics print every goroutine.
func installCrashHandler() {
	debug.SetTraceback("all")
}

// handleCrash reports a panic on the main goroutine with build information,
// then exits with status 2 like the runtime does.
func handleCrash() {
	r := recover()
	if r == nil {
		return
	}

	b := tether.BuildInfo()
	fmt.Fprintf(os.Stderr, "tetherctl %s (%s, rev %s) panicked: %v\n\n%s",
		b.Version, b.GoVersion, shortRevision(b.Revision), r, debug.Stack())
	os.Exit(2)
}

func shortRevision(rev string) string {
	if rev == "" {
		return "unknown"
	}
	if len(rev) > 12 {
		return rev[:12]
	}

	return rev
}
