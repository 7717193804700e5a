package clamav

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// clamscan exit codes
const (
	exitClean    = 0
	exitInfected = 1
)

var (
	ErrNoThreatsInOutput = errors.New("malware detected but no threats found in output")
	ErrScanFailed        = errors.New("clamscan failed")
)

var databaseDateRe = regexp.MustCompile(`ClamAV \d+\.\d+\.\d+/\d+/([A-Za-z]{3} [A-Za-z]{3}\s+\d+\s+\d+:\d+:\d+ \d{4})`)

// parseResult extracts scan results from clamscan output.
func parseResult(output []byte, exitCode int, version string) (Result, error) {
	result := Result{
		Clean: exitCode == exitClean,
		Metadata: Metadata{
			EngineVersion: version,
			DatabaseDate:  extractDatabaseDate(version),
		},
	}

	switch exitCode {
	case exitClean:
		return result, nil
	case exitInfected:
		result.Threats = extractThreats(string(output))
		if len(result.Threats) == 0 {
			return result, ErrNoThreatsInOutput
		}
		return result, nil
	default:
		return result, fmt.Errorf("%w: exit code %d: %s", ErrScanFailed, exitCode, lastLine(string(output)))
	}
}

// extractThreats finds all "FOUND" lines and extracts threat names.
// Format: "/scan/MyAddon.zip: Win.Test.EICAR_HDB-1 FOUND"
func extractThreats(output string) []string {
	var threats []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, " FOUND") {
			continue
		}
		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			continue
		}
		name := strings.TrimSuffix(line[idx+2:], " FOUND")
		threats = append(threats, strings.TrimSpace(name))
	}
	return threats
}

// extractDatabaseDate parses the virus database date from version string.
// Example version: "ClamAV 1.5.1/27805/Mon Oct 27 09:50:30 2025"
func extractDatabaseDate(version string) string {
	if m := databaseDateRe.FindStringSubmatch(version); len(m) >= 2 {
		return m[1]
	}
	return "unknown"
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
