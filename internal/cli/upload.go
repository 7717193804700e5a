package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/wagoctl/internal/config"
	"github.com/clean-dependency-project/wagoctl/internal/gpg"
	"github.com/clean-dependency-project/wagoctl/internal/storage"
	"github.com/clean-dependency-project/wagoctl/internal/wago"
)

var errAlreadyUploaded = errors.New("this archive was already uploaded to the project")

// UploadResult is the outcome of the upload command.
type UploadResult struct {
	UploadID          string              `json:"upload_id"`
	ProjectID         string              `json:"project_id"`
	File              string              `json:"file"`
	SHA256            string              `json:"sha256"`
	DryRun            bool                `json:"dry_run"`
	Success           bool                `json:"success"`
	StatusCode        int                 `json:"status_code,omitempty"`
	RemoteID          string              `json:"remote_id,omitempty"`
	SignatureVerified bool                `json:"signature_verified"`
	MalwareScanned    bool                `json:"malware_scanned"`
	Metadata          *wago.AddonMetadata `json:"metadata"`
}

func uploadFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "project",
			Aliases:  []string{"p"},
			Usage:    "project id or alias from the projects section of the config",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "release archive to upload",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "signature",
			Usage: "detached signature of the archive (default: <file>.sig or <file>.asc when signatures are required)",
		},
		&cli.StringFlag{
			Name:  "keyring",
			Usage: "public key file or directory used to verify --signature (overrides release.keyring_path)",
		},
		&cli.BoolFlag{
			Name:  "scan",
			Usage: "scan the archive with ClamAV before uploading",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "run every check and validate metadata without uploading",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "upload even if history shows the same archive was already accepted",
		},
	}, metadataFlags()...)
}

// uploadCommand implements the upload command.
func uploadCommand(c *cli.Context, f Factories) error {
	s, err := newSession(c, f)
	if err != nil {
		return err
	}
	ctx := commandContext(c)

	projectID := s.cfg.ResolveProject(c.String("project"))
	filePath := c.String("file")
	dryRun := c.Bool("dry-run")
	uploadID := uuid.NewString()

	log := s.logger.With("upload_id", uploadID, "project_id", projectID, "file", filepath.Base(filePath))

	if !dryRun && !s.api.HasAPIKey() {
		return wago.ErrAuthentication
	}

	sum, size, err := fileDigest(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", wago.ErrFileNotFound, filePath)
		}
		return err
	}

	md, err := s.buildMetadata(c, f, filePath)
	if err != nil {
		return err
	}

	history, err := s.openHistory(f)
	if err != nil {
		return err
	}
	if history != nil {
		defer func() {
			if closeErr := history.Close(); closeErr != nil {
				log.Warn("failed to close database", "error", closeErr)
			}
		}()

		already, err := history.IsAlreadyUploaded(projectID, sum)
		if err != nil {
			return err
		}
		if already && !c.Bool("force") && !dryRun {
			log.Warn("archive already uploaded", "sha256", sum)
			return fmt.Errorf("%w (sha256 %s); use --force to upload again", errAlreadyUploaded, sum)
		}
	}

	signed, err := s.verifySignature(c, filePath, log)
	if err != nil {
		return err
	}
	scanned, err := s.scanArchive(ctx, c, f, filePath, log)
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

	record := &storage.Upload{
		UploadID:          uploadID,
		ProjectID:         projectID,
		Label:             md.Label,
		Stability:         string(md.Stability),
		Filename:          filepath.Base(filePath),
		FileSize:          size,
		SHA256:            sum,
		SignatureVerified: signed,
		MalwareScanned:    scanned,
	}
	if err := record.SetPatches(patchMap(md)); err != nil {
		return err
	}

	result := &UploadResult{
		UploadID:          uploadID,
		ProjectID:         projectID,
		File:              filePath,
		SHA256:            sum,
		DryRun:            dryRun,
		SignatureVerified: signed,
		MalwareScanned:    scanned,
		Metadata:          md,
	}

	if dryRun {
		if err := versions.Validate(md); err != nil {
			log.Warn("metadata rejected", "error", err)
			return err
		}
		record.Status = storage.StatusDryRun
		s.recordUpload(history, record, log)
		log.Info("dry run complete, nothing uploaded", "label", md.Label)
		result.Success = true
		return s.printUploadResult(result)
	}

	log.Info("uploading release", "label", md.Label, "stability", md.Stability, "size_bytes", size)
	resp, err := s.api.Upload(ctx, projectID, filePath, md)
	if err != nil {
		var apiErr *wago.APIError
		if errors.As(err, &apiErr) {
			record.Status = storage.StatusFailed
			record.StatusCode = apiErr.StatusCode
			record.ErrorMessage = err.Error()
			s.recordUpload(history, record, log)
		}
		log.Error("upload failed", "error", err)
		return fmt.Errorf("upload failed: %w", err)
	}

	record.Status = storage.StatusSuccess
	record.StatusCode = resp.StatusCode
	record.RemoteID = resp.ID
	s.recordUpload(history, record, log)

	result.Success = true
	result.StatusCode = resp.StatusCode
	result.RemoteID = resp.ID
	log.Info("upload accepted", "status_code", resp.StatusCode, "remote_id", resp.ID)
	return s.printUploadResult(result)
}

// openHistory returns nil when history is disabled.
func (s *session) openHistory(f Factories) (HistoryStore, error) {
	if s.cfg.Storage.DatabasePath == "" {
		return nil, nil
	}
	store, err := f.History(s.cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// recordUpload stores the attempt. A failing history write never changes the
// outcome of the upload.
func (s *session) recordUpload(history HistoryStore, record *storage.Upload, log *slog.Logger) {
	if history == nil {
		return
	}
	if err := history.RecordUpload(record); err != nil {
		log.Warn("failed to record upload history", "error", err)
	}
}

// verifySignature checks the archive's detached signature when one is given
// or release.require_signature is set. It reports whether a check ran.
func (s *session) verifySignature(c *cli.Context, filePath string, log *slog.Logger) (bool, error) {
	sigPath := c.String("signature")
	if sigPath == "" && !s.cfg.Release.RequireSignature {
		return false, nil
	}

	keyringPath := c.String("keyring")
	if keyringPath == "" {
		keyringPath = s.cfg.Release.KeyringPath
	}
	if keyringPath == "" {
		return false, config.ErrKeyringPathRequired
	}

	if sigPath == "" {
		found, err := gpg.SignatureFileFor(filePath)
		if err != nil {
			return false, err
		}
		sigPath = found
	}

	keyRing, err := gpg.LoadKeyRingFromPath(keyringPath)
	if err != nil {
		return false, fmt.Errorf("failed to load keyring: %w", err)
	}
	if err := gpg.VerifyDetachedSignature(keyRing, filePath, sigPath); err != nil {
		log.Error("signature verification failed", "signature", sigPath, "error", err)
		return false, err
	}

	log.Info("signature verified", "signature", sigPath, "keys", keyRing.Fingerprints())
	return true, nil
}

// scanArchive runs ClamAV when --scan or release.clamav.enabled is set. It
// reports whether a scan ran.
func (s *session) scanArchive(ctx context.Context, c *cli.Context, f Factories, filePath string, log *slog.Logger) (bool, error) {
	if !c.Bool("scan") && !s.cfg.Release.ClamAV.Enabled {
		return false, nil
	}

	image := s.cfg.Release.ClamAV.Image
	if image == "" {
		image = config.DefaultClamAVImage
	}

	log.Info("scanning archive", "image", image)
	result, err := f.Scanner(image, log).Scan(ctx, filePath)
	if err != nil {
		return false, fmt.Errorf("malware scan failed: %w", err)
	}
	if err := result.Err(); err != nil {
		log.Error("malware detected", "threats", result.Threats)
		return false, err
	}

	log.Info("archive is clean",
		"engine", result.Metadata.EngineVersion,
		"database_date", result.Metadata.DatabaseDate,
		"duration_ms", result.Metadata.ScanDuration.Milliseconds())
	return true, nil
}

// fileDigest returns the hex SHA-256 and size of the file at path.
func fileDigest(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, file)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func patchMap(md *wago.AddonMetadata) map[string][]string {
	patches := make(map[string][]string)
	for _, f := range wago.Flavors() {
		if p := md.Patches(f); len(p) > 0 {
			patches[string(f)] = p
		}
	}
	return patches
}
