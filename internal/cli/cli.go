// Package cli provides the wagoctl command-line interface.
// It loads the YAML configuration, builds the wago client and runs the
// reference-data, validation, upload and history commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/wagoctl/internal/clamav"
	"github.com/clean-dependency-project/wagoctl/internal/config"
	gh "github.com/clean-dependency-project/wagoctl/internal/github"
	"github.com/clean-dependency-project/wagoctl/internal/logger"
	"github.com/clean-dependency-project/wagoctl/internal/storage"
	"github.com/clean-dependency-project/wagoctl/internal/version"
	"github.com/clean-dependency-project/wagoctl/internal/wago"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return newApp(DefaultFactories())
}

// DefaultFactories wires the production implementations.
func DefaultFactories() Factories {
	return Factories{
		Wago: func(cfg wago.Config) WagoAPI {
			return wago.NewClient(cfg)
		},
		ReleaseNotes: func(token, repository string) (ReleaseNotesSource, error) {
			client, err := gh.NewClient(token, repository)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		History: func(databasePath string) (HistoryStore, error) {
			db, err := storage.InitDB(storage.Config{
				DatabasePath: databasePath,
				LogLevel:     "silent",
			})
			if err != nil {
				return nil, err
			}
			return db, nil
		},
		Scanner: func(image string, l *slog.Logger) Scanner {
			return clamav.NewDockerScanner(clamav.NewExecRunner(), image, l)
		},
	}
}

func newApp(f Factories) *cli.App {
	return &cli.App{
		Name:     "wagoctl",
		Usage:    "Query addons.wago.io reference data and publish addon releases",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "wagoctl.yaml",
				Usage:   "path to configuration file (defaults are used when it does not exist)",
				EnvVars: []string{"WAGOCTL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"WAGOCTL_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "log format (json, text)",
				EnvVars: []string{"WAGOCTL_LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "addons.wago.io API key, required for uploads",
				EnvVars: []string{"WAGO_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "override api.base_url from the configuration",
				EnvVars: []string{"WAGO_BASE_URL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "game-versions",
				Usage: "List the game patches currently accepted for each flavor",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "flavor",
						Usage: "only show one flavor (retail, cata, wotlk, bc, classic)",
					},
					&cli.BoolFlag{
						Name:  "latest",
						Usage: "only show the highest patch of each flavor",
					},
					outputFlag(),
				},
				Action: func(c *cli.Context) error { return gameVersionsCommand(c, f) },
			},
			{
				Name:   "categories",
				Usage:  "List addon categories",
				Flags:  []cli.Flag{outputFlag()},
				Action: func(c *cli.Context) error { return categoriesCommand(c, f) },
			},
			{
				Name:   "validate",
				Usage:  "Validate release metadata against the live game version list",
				Flags:  append(metadataFlags(), outputFlag()),
				Action: func(c *cli.Context) error { return validateCommand(c, f) },
			},
			{
				Name:   "upload",
				Usage:  "Upload a release archive to a project",
				Flags:  append(uploadFlags(), outputFlag()),
				Action: func(c *cli.Context) error { return uploadCommand(c, f) },
			},
			{
				Name:  "history",
				Usage: "Show recorded upload attempts",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "project",
						Usage: "project id or alias to filter by",
					},
					outputFlag(),
				},
				Action: func(c *cli.Context) error { return historyCommand(c, f) },
				Subcommands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Show one recorded upload attempt",
						ArgsUsage: "<upload-id>",
						Flags:     []cli.Flag{outputFlag()},
						Action:    func(c *cli.Context) error { return historyShowCommand(c, f) },
					},
				},
			},
			{
				Name:  "config",
				Usage: "Manage the configuration file",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write a default configuration to the --config path",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "force",
								Usage: "overwrite an existing file",
							},
						},
						Action: configInitCommand,
					},
				},
			},
		},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   outputText,
		Usage:   "output format (text, json)",
	}
}

// session carries what every command needs once flags and config are read.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	api    WagoAPI
	out    io.Writer
	output string
}

func newSession(c *cli.Context, f Factories) (*session, error) {
	output := c.String("output")
	if output == "" {
		output = outputText
	}
	if output != outputText && output != outputJSON {
		return nil, fmt.Errorf("invalid output format %q: must be %s or %s", output, outputText, outputJSON)
	}

	log, err := logger.New(c.String("log-level"), c.String("log-format"), c.App.ErrWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.LoadConfigOrDefault(c.String("config"))
	if err != nil {
		log.Error("failed to load config", "config", c.String("config"), "error", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	baseURL := cfg.API.GetBaseURL()
	if c.IsSet("base-url") {
		baseURL = strings.TrimRight(c.String("base-url"), "/")
	}
	userAgent := cfg.API.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	log.Debug("session ready", "base_url", baseURL, "has_api_key", c.String("api-key") != "")

	return &session{
		cfg:    cfg,
		logger: log,
		out:    c.App.Writer,
		output: output,
		api: f.Wago(wago.Config{
			BaseURL:   baseURL,
			APIKey:    c.String("api-key"),
			UserAgent: userAgent,
			Timeout:   cfg.API.GetTimeout(),
		}),
	}, nil
}

func commandContext(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// gameVersionsCommand implements the game-versions command.
func gameVersionsCommand(c *cli.Context, f Factories) error {
	s, err := newSession(c, f)
	if err != nil {
		return err
	}

	flavors := wago.Flavors()
	if name := c.String("flavor"); name != "" {
		flavor, err := wago.ParseFlavor(name)
		if err != nil {
			return err
		}
		flavors = []wago.Flavor{flavor}
	}

	versions, err := s.api.GetGameVersions(commandContext(c))
	if err != nil {
		s.logger.Error("failed to get game versions", "error", err)
		return fmt.Errorf("failed to get game versions: %w", err)
	}

	listing := make([]flavorPatches, 0, len(flavors))
	for _, flavor := range flavors {
		patches := version.Sort(versions.Patches(flavor))
		if c.Bool("latest") && len(patches) > 0 {
			latest, err := version.Latest(patches)
			if err != nil {
				return fmt.Errorf("failed to find latest %s patch: %w", flavor, err)
			}
			patches = []string{latest}
		}
		listing = append(listing, flavorPatches{Flavor: flavor, Patches: patches})
	}

	s.logger.Debug("retrieved game versions", "flavors", len(listing))
	return s.printGameVersions(listing)
}

// categoriesCommand implements the categories command.
func categoriesCommand(c *cli.Context, f Factories) error {
	s, err := newSession(c, f)
	if err != nil {
		return err
	}

	categories, err := s.api.GetAddonCategories(commandContext(c))
	if err != nil {
		s.logger.Error("failed to get categories", "error", err)
		return fmt.Errorf("failed to get categories: %w", err)
	}

	return s.printCategories(categories)
}

// validateCommand implements the validate command.
func validateCommand(c *cli.Context, f Factories) error {
	s, err := newSession(c, f)
	if err != nil {
		return err
	}
	ctx := commandContext(c)

	md, err := s.buildMetadata(c, f, "")
	if err != nil {
		return err
	}

	versions, err := s.api.GetGameVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get supported game versions: %w", err)
	}
	if err := resolveLatestPatches(md, versions); err != nil {
		return err
	}
	if err := versions.Validate(md); err != nil {
		s.logger.Warn("metadata rejected", "error", err)
		return err
	}

	s.logger.Info("metadata valid", "label", md.Label, "stability", md.Stability)
	return s.printMetadata(md)
}

// historyCommand implements the history command.
func historyCommand(c *cli.Context, f Factories) error {
	s, err := newSession(c, f)
	if err != nil {
		return err
	}

	store, err := s.requireHistory(c, f)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			s.logger.Warn("failed to close database", "error", closeErr)
		}
	}()

	var uploads []*storage.Upload
	if project := c.String("project"); project != "" {
		uploads, err = store.ListByProject(s.cfg.ResolveProject(project))
	} else {
		uploads, err = store.ListAll()
	}
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}

	return s.printHistory(uploads)
}

// historyShowCommand implements history show.
func historyShowCommand(c *cli.Context, f Factories) error {
	s, err := newSession(c, f)
	if err != nil {
		return err
	}

	uploadID := c.Args().First()
	if uploadID == "" || c.NArg() > 1 {
		return fmt.Errorf("usage: wagoctl history show <upload-id>")
	}

	store, err := s.requireHistory(c, f)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			s.logger.Warn("failed to close database", "error", closeErr)
		}
	}()

	upload, err := store.GetUpload(uploadID)
	if err != nil {
		return fmt.Errorf("failed to get upload %s: %w", uploadID, err)
	}
	return s.printUpload(upload)
}

// requireHistory opens the history database, failing when history is disabled.
func (s *session) requireHistory(c *cli.Context, f Factories) (HistoryStore, error) {
	store, err := s.openHistory(f)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("upload history is disabled: set storage.database_path in %s", c.String("config"))
	}
	return store, nil
}

// configInitCommand implements config init.
func configInitCommand(c *cli.Context) error {
	path := c.String("config")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists; use --force to overwrite it", path)
	}

	cfg := config.DefaultConfig()
	cfg.Storage.DatabasePath = config.DefaultDatabasePath
	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}

	_, err := fmt.Fprintf(c.App.Writer, "Wrote default configuration to %s\n", path)
	return err
}
