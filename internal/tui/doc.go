// Package tui provides the live terminal monitor for a running
// conductor: a table of chief activity, a scrolling event feed, and
// cycle telemetry in the footer.
package tui
