// Package zl adapts github.com/rs/zerolog to the tether Logger interface.
//
//	logger, err := zl.FromEnv(os.Stderr, "orders")
//	if err != nil {
//	    logger.Warn("ignoring log level override", "error", err)
//	}
//	registry, _ := tether.NewRegistry(factory, tether.WithLogger(logger))
//
// The level is read from TETHER_LOG_LEVEL (trace, debug, info, warn, error,
// fatal, panic, disabled) and defaults to info.
package zl
