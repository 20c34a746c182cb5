// Package log provides structured logging for claimd components.
//
// Components receive a Logger via dependency injection and attach
// contextual fields with With:
//
//	logger := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	logger = logger.With(log.F("component", "reaper"))
//	logger.Info("released stale claim", log.F("item", id), log.Err(err))
package log
