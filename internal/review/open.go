package review

import (
	"context"
	"fmt"

	"github.com/adhd-assessment-server/internal/database"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// Open builds the store selected by config. The postgres backend applies
// pending migrations before the store is returned.
func Open(ctx context.Context, config domain.ReviewConfig, logger *logrus.Logger) (Store, error) {
	switch config.Driver {
	case "", "sqlite":
		store, err := NewSQLiteStore(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", config.SQLitePath).Info("Review store opened (sqlite)")
		return store, nil

	case "postgres":
		if config.PostgresURL == "" {
			return nil, fmt.Errorf("review.postgres_url is required for the postgres driver")
		}
		if err := database.Migrate(ctx, config.PostgresURL, config.MigrationsPath, logger); err != nil {
			return nil, fmt.Errorf("migrating review schema: %w", err)
		}
		conn, err := database.NewConnection(ctx, config.PostgresURL, database.DefaultPoolConfig, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(conn.SQL())
		if err != nil {
			conn.Close()
			return nil, err
		}
		logger.Info("Review store opened (postgres)")
		return &pooledStore{PostgresStore: store, conn: conn}, nil

	default:
		return nil, fmt.Errorf("unknown review driver %q", config.Driver)
	}
}

// pooledStore closes the pool along with the store
type pooledStore struct {
	*PostgresStore
	conn *database.DB
}

func (p *pooledStore) Close() error {
	p.conn.Close()
	return nil
}
