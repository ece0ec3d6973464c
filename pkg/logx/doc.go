// Package logx configures searchwatch's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional forwarding of warn+ records to a notification sender
//     (min-level + rate limiting)
package logx
