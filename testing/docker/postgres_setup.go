package docker

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/database"
	"github.com/syncromatics/testkit/testing/harness"
)

var (
	postgresImage = "postgres:16-alpine"
)

// PostgresPort is the port postgres serves on inside the container.
const PostgresPort = 5432

// Postgres is a running postgres server with an open connection pool to the
// "test" database.
type Postgres struct {
	fixture

	Settings *database.PostgresDatabaseSettings
	DB       *sql.DB
}

// PostgresSpec describes a postgres container that is ready once the test
// database accepts connections.
func PostgresSpec(testName string) harness.Spec {
	return harness.Spec{
		Name:  containerName(testName, "postgres_db"),
		Image: postgresImage,
		Ports: []int{PostgresPort},
		Env: []string{
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=test",
		},
		Probe: pingPostgres,
	}
}

func postgresSettings(endpoints harness.Endpoints) (*database.PostgresDatabaseSettings, error) {
	endpoint, err := endpoints.Get(PostgresPort)
	if err != nil {
		return nil, err
	}
	return &database.PostgresDatabaseSettings{
		Host:     endpoint.Host,
		Port:     endpoint.Port,
		User:     "postgres",
		Password: "postgres",
		Name:     "test",
	}, nil
}

func pingPostgres(ctx context.Context, endpoints harness.Endpoints) error {
	settings, err := postgresSettings(endpoints)
	if err != nil {
		return err
	}
	return database.Ping(ctx, database.DriverPostgres, settings.ConnectionString())
}

// SetupPostgres sets up a postgres database
func SetupPostgres(ctx context.Context, h *harness.Harness, testName string) (*Postgres, error) {
	p := &Postgres{}

	f, err := acquire(ctx, h, PostgresSpec(testName), func(handle *harness.Handle) error {
		endpoints, err := handle.Endpoints()
		if err != nil {
			return err
		}

		p.Settings, err = postgresSettings(endpoints)
		if err != nil {
			return err
		}

		p.DB, err = p.Settings.EnsureDatabaseExistsAndGetConnection(ctx)
		if err != nil {
			return errors.Wrap(err, "failed connecting to postgres")
		}

		return handle.Attach(p.DB)
	})
	if err != nil {
		return nil, err
	}
	p.fixture = f

	return p, nil
}

// TeardownPostgres closes the connection pool and tears down the postgres db
func TeardownPostgres(ctx context.Context, p *Postgres) error {
	if p == nil {
		return (*fixture)(nil).Teardown(ctx)
	}
	return p.Teardown(ctx)
}
