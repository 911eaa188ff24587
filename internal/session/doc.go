// Package session mirrors the currently selected inventory item and drives
// its checkout state machine.
//
// A Session holds at most one item. Load replaces the whole record; Checkout
// and Checkin persist the checkout triple first and touch the cached copy
// only after the database accepted the write, and only if the selection has
// not moved to another item in the meantime. Watcher feeds scan events from
// the bridge into Load.
package session
