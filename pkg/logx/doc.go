// Package logx is volramp's structured logging on top of zerolog.
//
// Loggers are values carrying fixed fields. Those obtained from a Service
// follow its configuration at runtime: readable console output, an optional
// JSON file, and an optional chat sink for warnings and errors that is
// rate limited and never blocks the caller.
package logx
