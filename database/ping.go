// Package database holds connection settings and readiness checks for the
// SQL servers the test presets start.
package database

import (
	"context"
	"database/sql"

	// registers the "sqlserver" driver
	_ "github.com/denisenkom/go-mssqldb"
	// registers the "pgx" driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// Registered database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverMSSql    = "sqlserver"
)

// Ping opens a connection with driver and dsn, pings once and closes it.
func Ping(ctx context.Context, driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return errors.Wrap(err, "open db failed")
	}
	defer db.Close()

	return db.PingContext(ctx)
}
