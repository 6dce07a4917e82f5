// Package ui implements the interactive ingestion terminal interface.
//
// The TUI walks one upload session through three views: a form (guideline
// label plus a PDF picker), a live progress view fed by the session's update
// channel, and a result view rendering the processed payload. The result view
// resets the form in place so the next upload starts without relaunching.
package ui
