package clamav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrDockerUnavailable = errors.New("docker command not available")
	ErrInfected          = errors.New("malware detected")
)

// containerDir is where the scanned archive is mounted inside the container.
const containerDir = "/scan"

// Scanner scans files for malware.
type Scanner interface {
	Scan(ctx context.Context, path string) (Result, error)
}

// Result represents the outcome of a malware scan.
type Result struct {
	Path     string
	Clean    bool
	Threats  []string
	Metadata Metadata
}

// Err returns nil for clean results and an error wrapping ErrInfected
// naming the threats otherwise.
func (r Result) Err() error {
	if r.Clean {
		return nil
	}
	return fmt.Errorf("%w in %s: %s", ErrInfected, filepath.Base(r.Path), strings.Join(r.Threats, ", "))
}

// Metadata contains information about the scan environment.
type Metadata struct {
	EngineVersion string
	DatabaseDate  string
	ScanDuration  time.Duration
}

// DockerScanner implements Scanner using ClamAV in a Docker container.
type DockerScanner struct {
	runner CommandRunner
	image  string
	logger *slog.Logger
}

// NewDockerScanner creates a scanner that uses ClamAV in Docker. A nil logger
// discards log output.
func NewDockerScanner(runner CommandRunner, image string, logger *slog.Logger) *DockerScanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DockerScanner{
		runner: runner,
		image:  image,
		logger: logger,
	}
}

// Scan scans a release archive. Archives are unpacked by clamscan itself, so
// threats inside a zip are reported against the archive.
func (s *DockerScanner) Scan(ctx context.Context, path string) (Result, error) {
	start := time.Now()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return Result{}, fmt.Errorf("failed to access %s: %w", path, err)
	}

	if !isDockerAvailable(ctx, s.runner) {
		return Result{}, ErrDockerUnavailable
	}

	if err := ensureImage(ctx, s.runner, s.image); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image: %w", err)
	}

	version, err := s.getVersion(ctx)
	if err != nil {
		s.logger.Warn("failed to get ClamAV version", "error", err)
		version = "unknown"
	}

	s.logger.Debug("running clamscan", "image", s.image, "file", absPath)
	output, err := s.runner.Run(ctx, "docker", buildDockerArgs(s.image, absPath)...)

	exitCode := 0
	if err != nil {
		exitCode = extractExitCode(err)
		if exitCode < 0 {
			return Result{}, fmt.Errorf("failed to run clamscan: %w", err)
		}
	}

	result, err := parseResult(output, exitCode, version)
	if err != nil {
		return Result{}, err
	}

	result.Path = absPath
	result.Metadata.ScanDuration = time.Since(start)
	return result, nil
}

func (s *DockerScanner) getVersion(ctx context.Context) (string, error) {
	output, err := s.runner.Run(ctx, "docker", "run", "--rm", s.image, "clamscan", "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func isDockerAvailable(ctx context.Context, runner CommandRunner) bool {
	_, err := runner.Run(ctx, "docker", "--version")
	return err == nil
}

// ensureImage pulls image unless it is already present locally.
func ensureImage(ctx context.Context, runner CommandRunner, image string) error {
	if _, err := runner.Run(ctx, "docker", "image", "inspect", image); err == nil {
		return nil
	}
	if _, err := runner.Run(ctx, "docker", "pull", image); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

// buildDockerArgs constructs arguments for docker run. The archive is
// mounted read-only under its own name and networking is disabled.
func buildDockerArgs(image, hostPath string) []string {
	containerPath := containerDir + "/" + filepath.Base(hostPath)
	return []string{
		"run",
		"--rm",
		"--network", "none",
		"-v", fmt.Sprintf("%s:%s:ro", hostPath, containerPath),
		image,
		"clamscan",
		"--stdout",
		"--scan-archive=yes",
		containerPath,
	}
}

// extractExitCode returns the exit code carried by err, or -1 if err is not
// an exit error.
func extractExitCode(err error) int {
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
