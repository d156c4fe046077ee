// Package logging provides structured diagnostic logging for oschat.
//
// This package wraps Go's log/slog to provide JSON-formatted logs tagged with
// the peer slot and bootstrap role, so the interleaved output of both chat
// processes can be untangled after the fact. It also provides the size-based
// [RotatingWriter] that backs the chat history file.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Persistent attributes (peer, role, arbitrary key-value pairs)
//   - Size-based rotation with numbered or suffixed backups
//   - Optional gzip compression for rotated files
//   - Aggregation and filtering of both peers' entries
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(dir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	peerLogger := logger.WithPeer("A").WithRole("initiator")
//	peerLogger.Info("segment created", "shm_id", id)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"segment created","peer":"A","role":"initiator","shm_id":32769}
//
// # Rotation
//
// Rotated files are named oschat.log.1, oschat.log.2 and so on, where .1 is
// the most recent backup. Setting [RotationConfig.BackupSuffix] to ".old"
// yields file.old instead, which is what the chat history uses.
//
// # Aggregation
//
//	entries, err := logging.AggregateLogs(dir)
//	filtered := logging.FilterLogs(entries, logging.LogFilter{Level: "WARN", Peer: "B"})
//	logging.WriteEntries(os.Stdout, filtered, "text")
//
// # Configuration
//
//	logging:
//	  enabled: true
//	  level: info
//	  max_size_mb: 10
//	  max_backups: 3
package logging
