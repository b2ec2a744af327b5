package querytest

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/golden-vcr/openapi-go/db"
	impl "github.com/golden-vcr/openapi-go/querytest/internal"
)

// Prepare returns a sql.DB connected to this project's querytest database, with the
// schema from package db applied. If docker isn't installed or the querytest container
// isn't running, the test is skipped.
//
// To start the database, run the following from anywhere in the repo:
//
// - go run github.com/golden-vcr/openapi-go/querytest/cmd
func Prepare(t *testing.T) *sql.DB {
	ctx := context.Background()
	uri := resolvePostgresUri(t)
	conn, err := db.Open(ctx, uri)
	if err != nil {
		t.Fatalf("failed to connect to querytest database at %s: %v", uri, err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("failed to migrate querytest database: %v", err)
	}
	return conn
}

// PrepareTx calls Prepare, then begins a transaction that's rolled back once the test
// is done
func PrepareTx(t *testing.T) *sql.Tx {
	tx, err := Prepare(t).Begin()
	if err != nil {
		t.Fatalf("db.Begin failed: %v", err)
	}
	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Logf("failed to roll back transaction created via PrepareTx: %v", err)
		}
	})
	return tx
}

func resolvePostgresUri(t *testing.T) string {
	rootDir, err := impl.FindProjectRootDir()
	if err != nil {
		t.Fatalf("unable to resolve project root directory: %v", err)
	}
	projectName := impl.GetProjectName(rootDir)

	ctx := context.Background()
	if !impl.IsDockerInstalled(ctx) {
		t.Skip("install docker and run 'go run github.com/golden-vcr/openapi-go/querytest/cmd' to enable query tests")
	}
	_, err = impl.FindContainerId(ctx, impl.GetContainerName(projectName))
	if errors.Is(err, impl.ErrNoSuchContainer) {
		t.Skip("run 'go run github.com/golden-vcr/openapi-go/querytest/cmd' to enable query tests")
	}
	if err != nil {
		t.Fatalf("unable to check querytest container status: %v", err)
	}
	return impl.GetPostgresUri(projectName)
}
