// Package logx configures the dashboard's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional dashboard stream sink (min-level + rate limiting) that
//     mirrors log lines to connected websocket clients
package logx
