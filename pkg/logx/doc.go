// Package logx is medremind's structured logging layer: a thin wrapper
// around zerolog that keeps console output human-readable, writes JSON to
// the optional log file, and lets levels and sinks be swapped at runtime
// when the config reloads.
package logx
