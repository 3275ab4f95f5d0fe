// Package logx is hwbot's structured logging, a thin layer over zerolog.
//
// A Logger is a value: the zero value discards everything, With derives a
// child with fixed fields, and loggers taken from a Service follow every
// Service.Apply (level or sink changes from a config reload).
//
// Sinks: a human console writer, a size-rotated JSON file (lumberjack) and an
// optional Telegram chat that receives records at or above a minimum level.
package logx
