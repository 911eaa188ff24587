// Package inventory persists item records, the database collaborator behind
// the item session cache.
//
// Two drivers implement Store: SQLite (modernc.org/sqlite, the default, one
// file under the data directory) and PostgreSQL (pgx). Open picks one from
// the database section of the config. Checkout state is always written as
// one statement so is_checked_out, check_out_date and check_out_poc never
// disagree on disk.
package inventory
