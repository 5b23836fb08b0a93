package database

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// MSSqlDatabaseSettings is the settings for a ms sql database
type MSSqlDatabaseSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	// Name is optional; without it connections land in the login's default database.
	Name    *string
	AppName string
}

// URL returns the sqlserver connection URL.
func (ds *MSSqlDatabaseSettings) URL() string {
	query := url.Values{}
	if ds.AppName != "" {
		query.Add("app name", ds.AppName)
	}
	if ds.Name != nil {
		query.Add("database", *ds.Name)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(ds.User, ds.Password),
		Host:     net.JoinHostPort(ds.Host, strconv.Itoa(ds.getPort())),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// GetDB will return a database instance from the settings
func (ds *MSSqlDatabaseSettings) GetDB() (*sql.DB, error) {
	db, err := sql.Open(DriverMSSql, ds.URL())
	if err != nil {
		return nil, errors.Wrap(err, "open db failed")
	}

	return db, nil
}

// EnsureDatabaseExists creates the named database if it is missing. It is a
// no-op when no name is set.
func (ds *MSSqlDatabaseSettings) EnsureDatabaseExists(ctx context.Context) error {
	if ds.Name == nil {
		return nil
	}

	server := *ds
	server.Name = nil
	db, err := server.GetDB()
	if err != nil {
		return err
	}
	defer db.Close()

	return ensureMSSqlDatabase(ctx, db, *ds.Name)
}

func ensureMSSqlDatabase(ctx context.Context, db *sql.DB, name string) error {
	_, err := db.ExecContext(ctx,
		"DECLARE @q nvarchar(300) = QUOTENAME(@p1); IF DB_ID(@p1) IS NULL EXEC('CREATE DATABASE ' + @q)",
		name)
	if err != nil {
		return errors.Wrapf(err, "failed creating database %s", name)
	}
	return nil
}

func (ds *MSSqlDatabaseSettings) getPort() int {
	if ds.Port != 0 {
		return ds.Port
	}

	return 1433
}
