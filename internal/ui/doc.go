// Package ui holds the terminal styling shared by the aseko command-line
// tools: banners, result boxes, tables and yes/no prompts.
//
// Everything renders to a string with Lipgloss so callers decide where it
// goes. Commands print boxes only when stdout is a terminal (IsTerminal)
// and fall back to plain log lines otherwise.
//
// # Logging Integration
//
// zap logging is silent unless ASEKO_LOG_LEVEL is set, so the curated
// output stays readable. Long-running commands like "aseko-server serve"
// enable logging from their configuration instead.
package ui
