/*
The querytest command manages a throwaway Postgres server running in Docker, with the
gateway's schema applied, so that query tests (e.g. for replay.PostgresStore) can run
against a live database.

Usage:

	go run github.com/golden-vcr/openapi-go/querytest/cmd [command]

Commands:

	up (default) | Ensures that a postgres server is running for this project
	down         | Shuts down any existing server for this project, if running
	restart      | Shuts down any existing server, then starts a new one

The container is named 'querytest-<project-name>' and listens on a host port derived
from the project name. Tests that call querytest.Prepare or querytest.PrepareTx are
skipped while it isn't running.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golden-vcr/openapi-go/db"
	impl "github.com/golden-vcr/openapi-go/querytest/internal"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	if command != "up" && command != "down" && command != "restart" {
		log.Fatalf("Unknown command '%s' (expected up|down|restart)", command)
	}

	ctx, close := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer close()

	if !impl.IsDockerInstalled(ctx) {
		log.Fatalf("docker is not installed")
	}
	rootDir, err := impl.FindProjectRootDir()
	if err != nil {
		log.Fatalf("failed to find project root dir: %v", err)
	}
	projectName := impl.GetProjectName(rootDir)
	containerName := impl.GetContainerName(projectName)
	fmt.Printf("Project:        %s\n", projectName)
	fmt.Printf("Container name: %s\n", containerName)
	fmt.Printf("Host port:      %d\n", impl.GetPostgresHostPort(projectName))

	containerId, err := impl.FindContainerId(ctx, containerName)
	switch {
	case err == nil:
		fmt.Printf("Container ID:   %s\n", containerId)
		if command == "up" {
			fmt.Printf("\n%s\n", impl.GetPostgresUri(projectName))
			return
		}
		if err := impl.StopContainer(ctx, containerId); err != nil {
			log.Fatalf("failed to stop container %s: %v", containerId, err)
		}
		fmt.Printf("Container stopped.\n")
		if command == "down" {
			return
		}
	case errors.Is(err, impl.ErrNoSuchContainer):
		fmt.Printf("Container is not running.\n")
		if command == "down" {
			return
		}
	default:
		log.Fatal(err)
	}

	env := []string{fmt.Sprintf("POSTGRES_PASSWORD=%s", impl.PostgresPassword)}
	ports := []string{fmt.Sprintf("%d:5432", impl.GetPostgresHostPort(projectName))}
	containerId, err = impl.StartContainer(ctx, containerName, impl.PostgresImage, env, ports)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}
	fmt.Printf("Container ID:   %s\n\n", containerId)

	// The postgres image restarts once after initdb, so the ready line appears twice;
	// retrying the connection below covers the gap
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := impl.WaitForLogLine(waitCtx, containerId, impl.PostgresReadyLine); err != nil {
		log.Fatalf("database did not become ready: %v", err)
	}

	uri := impl.GetPostgresUri(projectName)
	conn, err := db.Open(waitCtx, uri)
	for err != nil && waitCtx.Err() == nil {
		time.Sleep(250 * time.Millisecond)
		conn, err = db.Open(waitCtx, uri)
	}
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close()
	if err := db.Migrate(waitCtx, conn); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	fmt.Printf("\n%s\n", uri)
}
