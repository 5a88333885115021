/*
Package log wraps zerolog with a process-wide logger.

Init configures level and output (console by default, JSON on request).
Components derive child loggers once and add request fields as they go:

	logger := log.WithComponent("projector")
	pl := log.WithPath(logger, path)
	pl.Debug().Str("op_id", id).Msg("Task applied")

Messages start with a capital letter and carry data as fields, not in the
message text.
*/
package log
