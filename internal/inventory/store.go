package inventory

import (
	"context"
	"fmt"

	"shelfscan/internal/config"
)

// Store is the database collaborator used by sessions and the CLI.
type Store interface {
	FetchItem(ctx context.Context, id int64) (*Item, error)
	UpdateCheckoutStatus(ctx context.Context, id int64, status CheckoutStatus) error
	CreateItem(ctx context.Context, item NewItem) (*Item, error)
	ListItems(ctx context.Context) ([]*Item, error)
	UpdateImagePath(ctx context.Context, id int64, path string) error
	Close() error
}

// Open connects to the configured database and ensures its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "", "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		return OpenSQLite(ctx, cfg.SQLitePath())
	case "postgres":
		return OpenPostgres(ctx, cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
