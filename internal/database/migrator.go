package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations through an existing pool.
type Migrator struct {
	pool *pgxpool.Pool
}

func NewMigrator(pool *pgxpool.Pool) (*Migrator, error) {
	if pool == nil {
		return nil, fmt.Errorf("nil pgx pool")
	}
	return &Migrator{pool: pool}, nil
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	return mg.run(func(m *migrate.Migrate) error { return m.Up() })
}

// Down reverts all applied migrations.
func (mg *Migrator) Down() error {
	return mg.run(func(m *migrate.Migrate) error { return m.Down() })
}

// run opens a migrate instance on a pooled connection, applies fn and hands
// the connection back to the pool.
func (mg *Migrator) run(fn func(*migrate.Migrate) error) (err error) {
	db := sql.OpenDB(stdlib.GetPoolConnector(mg.pool))
	defer func() {
		err = errors.Join(err, db.Close())
	}()

	m, err := mg.instance(db)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		err = errors.Join(err, srcErr, dbErr)
	}()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (mg *Migrator) instance(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, "pgx5", driver)
}
