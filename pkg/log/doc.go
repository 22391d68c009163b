// Package log captures flake protocol events for later inspection.
//
// It is separate from operational logging (slog). A Logger receives every
// frame, decoded message, keepalive exchange and lifecycle change seen by a
// connection or router, and can forward them to slog, to a file, or both:
//
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a plain sequence of CBOR-encoded events with the .flog
// extension. The flake-log tool reads, filters and exports them.
package log
