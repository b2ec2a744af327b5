package impl

import (
	"fmt"
	"hash/crc32"
)

const (
	PostgresImage       = "postgres:16"
	PostgresPassword    = "password"
	PostgresHostPortMin = 44000
	PostgresHostPortMax = 44999

	// PostgresReadyLine is logged by the postgres image once it accepts connections
	PostgresReadyLine = "database system is ready to accept connections"
)

// GetContainerName returns the name of the docker container that runs query tests for
// the given project
func GetContainerName(projectName string) string {
	return fmt.Sprintf("querytest-%s", projectName)
}

// GetPostgresHostPort derives a stable host port for the project's container, so that
// several projects can run query tests side by side
func GetPostgresHostPort(projectName string) int {
	offset := int(crc32.ChecksumIEEE([]byte(projectName)) % (PostgresHostPortMax - PostgresHostPortMin + 1))
	return PostgresHostPortMin + offset
}

// GetPostgresUri returns the connection string for the project's querytest database
func GetPostgresUri(projectName string) string {
	return fmt.Sprintf("postgres://postgres:%s@localhost:%d?sslmode=disable", PostgresPassword, GetPostgresHostPort(projectName))
}
