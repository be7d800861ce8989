// Package logx configures sitepacer's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Components testable: the zero Logger is a safe no-op, so collaborators
//     take a Logger by value and never reach for global state
package logx
