package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PostgresDatabaseSettings are the settings for a postgres database
type PostgresDatabaseSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// ConnectionString returns a pgx key/value connection string for the database.
func (ds *PostgresDatabaseSettings) ConnectionString() string {
	return fmt.Sprintf("%s dbname=%s", ds.ServerConnectionString(), ds.Name)
}

// ServerConnectionString returns a connection string that does not select a
// database, for work against the server itself.
func (ds *PostgresDatabaseSettings) ServerConnectionString() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d sslmode=disable", ds.User, ds.Password, ds.Host, ds.getPort())
}

// GetDB opens the database. The returned pool connects lazily.
func (ds *PostgresDatabaseSettings) GetDB() (*sql.DB, error) {
	db, err := sql.Open(DriverPostgres, ds.ConnectionString())
	if err != nil {
		return nil, errors.Wrap(err, "open db failed")
	}
	return db, nil
}

// EnsureDatabaseExistsAndGetConnection will create the database if it doesn't exist and return a connection.
func (ds *PostgresDatabaseSettings) EnsureDatabaseExistsAndGetConnection(ctx context.Context) (*sql.DB, error) {
	server, err := sql.Open(DriverPostgres, ds.ServerConnectionString())
	if err != nil {
		return nil, errors.Wrap(err, "open server failed")
	}
	defer server.Close()

	err = ensurePostgresDatabase(ctx, server, ds.Name)
	if err != nil {
		return nil, err
	}

	return ds.GetDB()
}

func ensurePostgresDatabase(ctx context.Context, db *sql.DB, name string) error {
	r := 0
	err := db.QueryRowContext(ctx, "select 1 from pg_database where datname=$1", name).Scan(&r)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrapf(err, "failed looking up database %s", name)
	}
	if r == 1 {
		return nil
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("create database %s", pgx.Identifier{name}.Sanitize()))
	if err != nil {
		return errors.Wrapf(err, "failed creating database %s", name)
	}
	return nil
}

func (ds *PostgresDatabaseSettings) getPort() int {
	if ds.Port != 0 {
		return ds.Port
	}

	return 5432
}
