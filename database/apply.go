package database

import (
	"context"
	"database/sql"

	"github.com/apex/log"
	"github.com/pkg/errors"

	_ "github.com/lib/pq"
)

var ErrNoDSN = errors.New("no database connection configured")

// ApplySchema executes a DDL script against PostgreSQL in one transaction.
func ApplySchema(ctx context.Context, dsn, script string) error {
	if dsn == "" {
		return ErrNoDSN
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "connect to database")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	log.Info("Applying generated schema")
	if _, err := tx.ExecContext(ctx, script); err != nil {
		return errors.Wrap(err, "execute schema")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit schema")
	}
	log.Info("Schema applied")

	return nil
}
