// Command tetherctl exercises a tether registry against a live cluster.
//
// Usage:
//
//	tetherctl version
//	tetherctl ping cql://10.0.0.1?keyspace=app
//	tetherctl soak --config tetherctl.yaml --workers 32 --duration 10m
//	tetherctl drain 10.0.0.1 --reason "OS patching" --config tetherctl.yaml
//
// TETHER_LOG_LEVEL sets the log level. TETHER_DONT_INSTALL_CRASH_HANDLER
// disables the panic handler that prints all goroutine stacks.
package main

import (
	"os"
)

func main() {
	if os.Getenv(envNoCrashHandler) == "" {
		installCrashHandler()
		defer handleCrash()
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
