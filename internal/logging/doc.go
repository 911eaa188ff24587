// Package logging configures shelfscan's structured logging stack on top of slog.
//
// New and NewFromConfig build console or JSON handlers, optionally tee the
// output into a log file and a StreamHub so the CLI can tail daemon logs over
// the bridge socket. Helpers such as NewComponentLogger and WarnWithContext
// keep field names (component, item_id, run_id, event_type) consistent across
// the capture, session and inventory packages.
package logging
