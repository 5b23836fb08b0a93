package docker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/syncromatics/testkit/database"
	"github.com/syncromatics/testkit/testing/harness"
)

var (
	databaseImage = "mcr.microsoft.com/mssql/server:2019-latest"
)

// MSSqlPort is the port sql server listens on inside the container.
const MSSqlPort = 1433

// DatabaseSetup is the settings for the test database
type DatabaseSetup struct {
	TestName      string
	DatabaseImage *string
	UserName      string
	// Password becomes the sa password; the image rejects weak ones.
	Password     string
	DatabaseName *string
}

// MSSql is a running sql server.
type MSSql struct {
	fixture

	Settings *database.MSSqlDatabaseSettings
}

// MSSqlSpec describes a sql server container that is ready once a login
// succeeds.
func MSSqlSpec(setup DatabaseSetup) harness.Spec {
	image := databaseImage
	if setup.DatabaseImage != nil {
		image = *setup.DatabaseImage
	}

	return harness.Spec{
		Name:  containerName(setup.TestName, "database_test"),
		Image: image,
		Ports: []int{MSSqlPort},
		Env: []string{
			"ACCEPT_EULA=Y",
			fmt.Sprintf("MSSQL_SA_PASSWORD=%s", setup.Password),
		},
		Probe: func(ctx context.Context, endpoints harness.Endpoints) error {
			settings, err := mssqlSettings(endpoints, setup)
			if err != nil {
				return err
			}
			settings.Name = nil
			return database.Ping(ctx, database.DriverMSSql, settings.URL())
		},
	}
}

func mssqlSettings(endpoints harness.Endpoints, setup DatabaseSetup) (*database.MSSqlDatabaseSettings, error) {
	endpoint, err := endpoints.Get(MSSqlPort)
	if err != nil {
		return nil, err
	}
	return &database.MSSqlDatabaseSettings{
		Host:     endpoint.Host,
		Port:     endpoint.Port,
		User:     setup.UserName,
		Password: setup.Password,
		Name:     setup.DatabaseName,
		AppName:  "util",
	}, nil
}

// SetupMSSql will setup a test database. When setup names a database it is
// created.
func SetupMSSql(ctx context.Context, h *harness.Harness, setup DatabaseSetup) (*MSSql, error) {
	m := &MSSql{}

	f, err := acquire(ctx, h, MSSqlSpec(setup), func(handle *harness.Handle) error {
		endpoints, err := handle.Endpoints()
		if err != nil {
			return err
		}

		m.Settings, err = mssqlSettings(endpoints, setup)
		if err != nil {
			return err
		}

		err = m.Settings.EnsureDatabaseExists(ctx)
		if err != nil {
			return errors.Wrap(err, "failed preparing test database")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.fixture = f

	return m, nil
}

// TeardownMSSql will teardown the test database
func TeardownMSSql(ctx context.Context, m *MSSql) error {
	if m == nil {
		return (*fixture)(nil).Teardown(ctx)
	}
	return m.Teardown(ctx)
}
