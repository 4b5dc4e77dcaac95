package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// MongoURI returns the URI of a shared MongoDB test container.
// The test is skipped when no container can be started (e.g. Docker is unavailable).
func MongoURI(t *testing.T) string {
	t.Helper()

	mongoOnce.Do(func() {
		mongoURI, mongoErr = startMongo()
	})
	if mongoErr != nil {
		t.Skipf("skipping Mongo tests: %v", mongoErr)
	}
	return mongoURI
}

func startMongo() (uri string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// testcontainers panics on some unsupported Docker setups.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting MongoDB testcontainer panicked: %v", r)
		}
	}()

	container, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start MongoDB testcontainer: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("failed to get MongoDB container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("failed to get MongoDB container port: %w", err)
	}

	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port()), nil
}

var (
	postgresOnce sync.Once
	postgresDSN  string
	postgresErr  error
)

// PostgresDSN returns the DSN of a shared PostgreSQL test container.
// The test is skipped when no container can be started.
func PostgresDSN(t *testing.T) string {
	t.Helper()

	postgresOnce.Do(func() {
		postgresDSN, postgresErr = startPostgres()
	})
	if postgresErr != nil {
		t.Skipf("skipping Postgres tests: %v", postgresErr)
	}
	return postgresDSN
}

func startPostgres() (dsn string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting Postgres testcontainer panicked: %v", r)
		}
	}()

	container, err := testcontainers.Run(
		ctx, "postgres:16-alpine",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "survey",
			"POSTGRES_PASSWORD": "survey",
			"POSTGRES_DB":       "voicesurvey",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Postgres testcontainer: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("failed to get Postgres container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(context.Background())
		return "", fmt.Errorf("failed to get Postgres container port: %w", err)
	}

	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("postgres://survey:survey@%s:%s/voicesurvey?sslmode=disable", host, port.Port()), nil
}
