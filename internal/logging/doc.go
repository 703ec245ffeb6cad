// Package logging builds the slog loggers used across greenroom.
//
// It supports a human-readable console format and a JSON format, multiplexes
// output to stdout/stderr and log files, provides typed attribute helpers so
// call sites stay consistent, and prunes old log files on daemon startup.
package logging
