package impl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
)

// ErrNoSuchContainer is returned when docker ran successfully but found no container
// with the requested name
var ErrNoSuchContainer = errors.New("no such container")

// ContainerId is the hex ID that docker reports for a container
type ContainerId string

var containerIdRegex = regexp.MustCompile("^[0-9a-f]{12,}$")

// IsDockerInstalled returns true if 'docker -v' runs successfully
func IsDockerInstalled(ctx context.Context) bool {
	return exec.CommandContext(ctx, "docker", "-v").Run() == nil
}

// FindContainerId returns the ID of the running container with the given name, or
// ErrNoSuchContainer if there isn't one
func FindContainerId(ctx context.Context, containerName string) (ContainerId, error) {
	output, err := exec.CommandContext(ctx, "docker", "ps", "--filter", "name="+containerName, "--format", "{{.ID}}").Output()
	if err != nil {
		return "", fmt.Errorf("docker ps failed: %w", err)
	}
	id, ok := firstContainerId(output)
	if !ok {
		return "", fmt.Errorf("container %s is not running: %w", containerName, ErrNoSuchContainer)
	}
	return id, nil
}

// StartContainer runs image in a detached, auto-removed container, passing each env
// entry via -e and each port mapping via -p
func StartContainer(ctx context.Context, containerName, image string, env, ports []string) (ContainerId, error) {
	args := []string{"run", "--rm", "-d", "--name", containerName}
	for _, e := range env {
		args = append(args, "-e", e)
	}
	for _, p := range ports {
		args = append(args, "-p", p)
	}
	args = append(args, image)

	output, err := exec.CommandContext(ctx, "docker", args...).Output()
	if err != nil {
		return "", fmt.Errorf("docker run failed: %w", err)
	}
	id, ok := firstContainerId(output)
	if !ok {
		return "", fmt.Errorf("unexpected output from docker run: %q", output)
	}
	return id, nil
}

// WaitForLogLine follows the container's combined output until a line containing
// needle is seen, returning an error if ctx is done first
func WaitForLogLine(ctx context.Context, containerId ContainerId, needle string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "logs", "-f", string(containerId))
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("docker logs failed: %w", err)
	}
	go func() {
		pw.CloseWithError(cmd.Wait())
	}()

	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), needle) {
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("container output ended without %q: %v", needle, scanner.Err())
}

// StopContainer stops the container with the given ID
func StopContainer(ctx context.Context, containerId ContainerId) error {
	return exec.CommandContext(ctx, "docker", "stop", string(containerId)).Run()
}

func firstContainerId(output []byte) (ContainerId, bool) {
	line, _, _ := strings.Cut(string(output), "\n")
	line = strings.TrimSpace(line)
	if !containerIdRegex.MatchString(line) {
		return "", false
	}
	return ContainerId(line), true
}
