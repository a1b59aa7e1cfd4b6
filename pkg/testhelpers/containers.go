package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/database"
	"github.com/ekaya-inc/apiary-engine/pkg/retry"
)

// PostgresImage is the stock image the integration tests run against.
const PostgresImage = "postgres:16-alpine"

const (
	adminUser     = "apiary"
	adminPassword = "test_password"
	testDatabase  = "apiary_test"

	// AppRole is the unprivileged role the engine connects as, so that row
	// level security applies. Superusers bypass RLS even when forced.
	AppRole         = "apiary_app"
	appRolePassword = "app_password"
)

// TestDB holds a shared test database container and a superuser pool.
type TestDB struct {
	Container testcontainers.Container
	Admin     *database.DB
	host      string
	port      string
}

// connStr builds a URL for role on the test database.
func (tdb *TestDB) connStr(role, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		role, password, tdb.host, tdb.port, testDatabase)
}

// readyRetry covers the gap between the ready log line and the port
// accepting connections on slow Docker hosts.
var readyRetry = &retry.Config{
	MaxRetries:   10,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   1.5,
}

func (tdb *TestDB) connect(ctx context.Context, role, password string, maxConns int32) (*database.DB, error) {
	return retry.DoWithResult(ctx, readyRetry, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            tdb.connStr(role, password),
			MaxConnections: maxConns,
		})
	})
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     adminUser,
			"POSTGRES_PASSWORD": adminPassword,
		},
		// The server restarts once after init; wait for the second ready line.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	tdb := &TestDB{Container: container, host: host, port: port.Port()}
	if tdb.Admin, err = tdb.connect(ctx, adminUser, adminPassword, 10); err != nil {
		return nil, fmt.Errorf("failed to connect as admin: %w", err)
	}
	return tdb, nil
}

// EngineDB holds the engine database connection with migrations applied.
// DB connects as AppRole; Admin bypasses RLS for fixtures and cleanup.
type EngineDB struct {
	DB      *database.DB
	Admin   *database.DB
	ConnStr string
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared engine database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	testDB := GetTestDB(t)

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB(testDB)
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func setupEngineDB(testDB *TestDB) (*EngineDB, error) {
	ctx := context.Background()

	if err := database.RunMigrations(testDB.Admin.SQLDB(), MigrationsPath(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	grants := []string{
		fmt.Sprintf("DO $$ BEGIN CREATE ROLE %s LOGIN PASSWORD '%s'; EXCEPTION WHEN duplicate_object THEN NULL; END $$", AppRole, appRolePassword),
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", AppRole),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %s", AppRole),
	}
	for _, stmt := range grants {
		if _, err := testDB.Admin.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to prepare app role: %w", err)
		}
	}

	db, err := testDB.connect(ctx, AppRole, appRolePassword, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	return &EngineDB{
		DB:      db,
		Admin:   testDB.Admin,
		ConnStr: testDB.connStr(AppRole, appRolePassword),
	}, nil
}
