// Package cli provides command-line interface components with testable abstractions.
package cli

import (
	"context"
	"log/slog"

	"github.com/clean-dependency-project/wagoctl/internal/clamav"
	"github.com/clean-dependency-project/wagoctl/internal/storage"
	"github.com/clean-dependency-project/wagoctl/internal/wago"
)

// WagoAPI abstracts the addons.wago.io client for testing.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
type WagoAPI interface {
	// HasAPIKey reports whether the client was configured with an API key.
	HasAPIKey() bool

	// GetGameVersions returns the patches the API currently accepts.
	GetGameVersions(ctx context.Context) (*wago.GameVersions, error)

	// GetAddonCategories returns the addon category list.
	GetAddonCategories(ctx context.Context) ([]wago.AddonCategory, error)

	// ValidateMetadata checks metadata against freshly fetched game versions.
	ValidateMetadata(ctx context.Context, metadata *wago.AddonMetadata) error

	// Upload publishes a release file with its metadata to a project.
	Upload(ctx context.Context, projectID, filePath string, metadata *wago.AddonMetadata) (*wago.UploadResponse, error)
}

// ReleaseNotesSource provides changelog text for a release tag.
type ReleaseNotesSource interface {
	ReleaseNotes(ctx context.Context, tag string) (string, error)
}

// HistoryStore abstracts upload history persistence.
type HistoryStore interface {
	RecordUpload(upload *storage.Upload) error
	GetUpload(uploadID string) (*storage.Upload, error)
	IsAlreadyUploaded(projectID, sha256 string) (bool, error)
	ListAll() ([]*storage.Upload, error)
	ListByProject(projectID string) ([]*storage.Upload, error)
	Close() error
}

// Scanner abstracts the malware scan of a release archive.
type Scanner interface {
	Scan(ctx context.Context, path string) (clamav.Result, error)
}

// Factories builds the collaborators of a command. Tests replace individual
// fields; NewApp uses DefaultFactories.
type Factories struct {
	Wago         func(cfg wago.Config) WagoAPI
	ReleaseNotes func(token, repository string) (ReleaseNotesSource, error)
	History      func(databasePath string) (HistoryStore, error)
	Scanner      func(image string, logger *slog.Logger) Scanner
}
