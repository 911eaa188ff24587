package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    manufacturer TEXT NOT NULL DEFAULT '',
    manufacturer_contact TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '',
    is_checked_out BOOLEAN NOT NULL DEFAULT FALSE,
    check_out_date TIMESTAMPTZ,
    check_out_poc TEXT NOT NULL DEFAULT '',
    image_path TEXT NOT NULL DEFAULT '',
    date_added TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_items_checked_out ON items (is_checked_out);
`

// PostgresStore keeps items in PostgreSQL. A single pgx connection is
// shared and serialized.
type PostgresStore struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// OpenPostgres connects using a libpq-style or URL connection string.
func OpenPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	if strings.TrimSpace(connString) == "" {
		return nil, errors.New("postgres driver requires database.dsn")
	}
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := conn.Exec(ctx, postgresSchema); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("initialize database schema: %w", err)
	}
	return &PostgresStore{conn: conn}, nil
}

// Close terminates the database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}

// FetchItem returns the item with id or ErrNotFound.
func (s *PostgresStore) FetchItem(ctx context.Context, id int64) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := scanPostgresItem(s.conn.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch item %d: %w", id, err)
	}
	return item, nil
}

// UpdateCheckoutStatus writes the checkout triple in one statement.
func (s *PostgresStore) UpdateCheckoutStatus(ctx context.Context, id int64, status CheckoutStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var date pgtype.Timestamptz
	if !status.Date.IsZero() {
		date = pgtype.Timestamptz{Time: status.Date.UTC(), Valid: true}
	}
	tag, err := s.conn.Exec(ctx,
		`UPDATE items SET is_checked_out = $1, check_out_date = $2, check_out_poc = $3 WHERE id = $4`,
		status.CheckedOut, date, status.POC, id,
	)
	if err != nil {
		return fmt.Errorf("update checkout status for item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// UpdateImagePath records where the item's picture is stored.
func (s *PostgresStore) UpdateImagePath(ctx context.Context, id int64, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, err := s.conn.Exec(ctx, `UPDATE items SET image_path = $1 WHERE id = $2`, path, id)
	if err != nil {
		return fmt.Errorf("update image path for item %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// CreateItem inserts a new, available item.
func (s *PostgresStore) CreateItem(ctx context.Context, item NewItem) (*Item, error) {
	if err := item.validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created, err := scanPostgresItem(s.conn.QueryRow(ctx,
		`INSERT INTO items (name, description, manufacturer, manufacturer_contact, tags, date_added)
         VALUES ($1, $2, $3, $4, $5, NOW())
         RETURNING `+itemColumns,
		strings.TrimSpace(item.Name), item.Description, item.Manufacturer, item.ManufacturerContact, joinTags(item.Tags),
	))
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return created, nil
}

// ListItems returns all items ordered by id.
func (s *PostgresStore) ListItems(ctx context.Context) ([]*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.conn.Query(ctx, "SELECT "+itemColumns+" FROM items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanPostgresItem(rows)
		if err != nil {
			return nil, fmt.Errorf("list items: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func scanPostgresItem(row pgx.Row) (*Item, error) {
	var (
		item     Item
		tags     string
		checkOut pgtype.Timestamptz
	)
	if err := row.Scan(
		&item.ID, &item.Name, &item.Description, &item.Manufacturer, &item.ManufacturerContact,
		&tags, &item.IsCheckedOut, &checkOut, &item.CheckOutPOC, &item.ImagePath, &item.DateAdded,
	); err != nil {
		return nil, err
	}
	item.Tags = splitTags(tags)
	if checkOut.Valid {
		item.CheckOutDate = checkOut.Time.UTC()
	}
	item.DateAdded = item.DateAdded.UTC()
	return &item, nil
}
