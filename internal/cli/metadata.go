package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/wagoctl/internal/version"
	"github.com/clean-dependency-project/wagoctl/internal/wago"
)

// metadataFlags are shared by validate and upload.
func metadataFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "metadata",
			Usage: "JSON file with label, stability, changelog and supported_<flavor>_patches; flags override its values",
		},
		&cli.StringFlag{
			Name:  "label",
			Usage: "release label (defaults to the archive name without extension)",
		},
		&cli.StringFlag{
			Name:  "stability",
			Usage: "release stability (stable, beta, alpha)",
		},
		&cli.StringFlag{
			Name:  "changelog",
			Usage: "changelog text (markdown)",
		},
		&cli.StringFlag{
			Name:  "changelog-file",
			Usage: "read the changelog from a file",
		},
		&cli.BoolFlag{
			Name:  "changelog-from-github",
			Usage: "use the body of a GitHub release as the changelog (see --github-repository and --tag)",
		},
		&cli.StringFlag{
			Name:  "github-repository",
			Usage: "owner/repo read by --changelog-from-github (default: release.github_repository)",
		},
		&cli.StringFlag{
			Name:  "tag",
			Usage: "GitHub release tag for --changelog-from-github (default: latest release)",
		},
	}
	for _, f := range wago.Flavors() {
		flags = append(flags, &cli.StringSliceFlag{
			Name:  string(f),
			Usage: fmt.Sprintf("supported %s patches, comma separated; %q selects the newest", f, version.LatestKeyword),
		})
	}
	return flags
}

// loadMetadataFile reads an AddonMetadata JSON document.
func loadMetadataFile(path string) (*wago.AddonMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}
	var md wago.AddonMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}
	return &md, nil
}

// buildMetadata assembles release metadata from --metadata and the
// individual flags. archivePath, when set, provides the default label.
// Stability defaults to stable.
func (s *session) buildMetadata(c *cli.Context, f Factories, archivePath string) (*wago.AddonMetadata, error) {
	md := &wago.AddonMetadata{}
	if path := c.String("metadata"); path != "" {
		loaded, err := loadMetadataFile(path)
		if err != nil {
			return nil, err
		}
		md = loaded
	}

	if c.IsSet("label") {
		md.Label = c.String("label")
	}
	if md.Label == "" && archivePath != "" {
		base := filepath.Base(archivePath)
		md.Label = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if c.IsSet("stability") {
		stability, err := wago.ParseStability(c.String("stability"))
		if err != nil {
			return nil, err
		}
		md.Stability = stability
	}
	if md.Stability == "" {
		md.Stability = wago.StabilityStable
	}

	changelog, err := s.changelog(c, f)
	if err != nil {
		return nil, err
	}
	if changelog != "" {
		md.Changelog = changelog
	}

	for _, flavor := range wago.Flavors() {
		if c.IsSet(string(flavor)) {
			md.SetPatches(flavor, cleanPatches(c.StringSlice(string(flavor))))
		}
	}

	if !md.HasPatches() {
		s.logger.Warn("metadata lists no supported patches for any flavor", "label", md.Label)
	}
	return md, nil
}

// changelog returns the changelog selected by the flags. At most one source
// may be used.
func (s *session) changelog(c *cli.Context, f Factories) (string, error) {
	fromGitHub := c.Bool("changelog-from-github")
	sources := 0
	for _, set := range []bool{c.IsSet("changelog"), c.IsSet("changelog-file"), fromGitHub} {
		if set {
			sources++
		}
	}
	if sources > 1 {
		return "", fmt.Errorf("--changelog, --changelog-file and --changelog-from-github are mutually exclusive")
	}

	switch {
	case c.IsSet("changelog"):
		return c.String("changelog"), nil
	case c.IsSet("changelog-file"):
		data, err := os.ReadFile(c.String("changelog-file"))
		if err != nil {
			return "", fmt.Errorf("failed to read changelog file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case fromGitHub:
		repo := c.String("github-repository")
		if repo == "" {
			repo = s.cfg.Release.GitHubRepository
		}
		if repo == "" {
			return "", fmt.Errorf("--changelog-from-github needs --github-repository or release.github_repository")
		}
		source, err := f.ReleaseNotes(os.Getenv("GITHUB_TOKEN"), repo)
		if err != nil {
			return "", fmt.Errorf("failed to create GitHub client: %w", err)
		}
		notes, err := source.ReleaseNotes(commandContext(c), c.String("tag"))
		if err != nil {
			return "", fmt.Errorf("failed to read release notes from %s: %w", repo, err)
		}
		s.logger.Info("using GitHub release notes as changelog", "repository", repo, "tag", c.String("tag"))
		return notes, nil
	}
	return "", nil
}

// cleanPatches trims entries and drops empty ones so "--retail ''" clears a
// flavor.
func cleanPatches(patches []string) []string {
	cleaned := make([]string, 0, len(patches))
	for _, p := range patches {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

// resolveLatestPatches replaces the "latest" keyword in every flavor with
// the newest patch known to versions.
func resolveLatestPatches(md *wago.AddonMetadata, versions *wago.GameVersions) error {
	for _, flavor := range wago.Flavors() {
		patches := md.Patches(flavor)
		if len(patches) == 0 {
			continue
		}
		resolved, err := version.ResolveLatest(patches, versions.Patches(flavor))
		if err != nil {
			return fmt.Errorf("%s: %w", flavor, err)
		}
		md.SetPatches(flavor, resolved)
	}
	return nil
}
