// Package storage provides upload history tracking using GORM and SQLite
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilUpload = errors.New("upload cannot be nil")
	ErrNotFound  = errors.New("upload not found")
)

// Upload status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDryRun  = "dry_run"
)

// Upload represents one attempt to publish a release file to a project
type Upload struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// Correlation id shared with the log lines of the attempt
	UploadID string `gorm:"not null;uniqueIndex" json:"upload_id"`

	// What was uploaded
	ProjectID string `gorm:"not null;index:idx_project_sha" json:"project_id"`
	Label     string `gorm:"not null" json:"label"`
	Stability string `gorm:"not null" json:"stability"`
	Filename  string `gorm:"not null" json:"filename"`
	FileSize  int64  `json:"file_size"`
	SHA256    string `gorm:"not null;index:idx_project_sha" json:"sha256"`
	Patches   string `gorm:"type:json" json:"patches"` // flavor -> patches, JSON blob

	// Pre-upload checks
	SignatureVerified bool `gorm:"not null;default:false" json:"signature_verified"`
	MalwareScanned    bool `gorm:"not null;default:false" json:"malware_scanned"`

	// Outcome
	Status       string `gorm:"not null;index" json:"status"`
	StatusCode   int    `json:"status_code,omitempty"`
	RemoteID     string `json:"remote_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	UploadedAt time.Time `gorm:"not null" json:"uploaded_at"`
	CreatedAt  time.Time `json:"-"`
}

// TableName overrides the table name for GORM.
func (Upload) TableName() string {
	return "uploads"
}

// SetPatches stores the flavor -> patches map as the Patches JSON blob.
func (u *Upload) SetPatches(patches map[string][]string) error {
	data, err := json.Marshal(patches)
	if err != nil {
		return fmt.Errorf("failed to marshal patches: %w", err)
	}
	u.Patches = string(data)
	return nil
}

// GetPatches decodes the Patches JSON blob.
func (u *Upload) GetPatches() (map[string][]string, error) {
	patches := map[string][]string{}
	if u.Patches == "" {
		return patches, nil
	}
	if err := json.Unmarshal([]byte(u.Patches), &patches); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patches: %w", err)
	}
	return patches, nil
}

// DB wraps gorm.DB with our upload operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Upload{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordUpload creates a new upload record
func (d *DB) RecordUpload(upload *Upload) error {
	if upload == nil {
		return ErrNilUpload
	}
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = time.Now()
	}
	if err := d.db.Create(upload).Error; err != nil {
		return fmt.Errorf("failed to record upload: %w", err)
	}
	return nil
}

// GetUpload retrieves an upload by its correlation id
func (d *DB) GetUpload(uploadID string) (*Upload, error) {
	if uploadID == "" {
		return nil, fmt.Errorf("upload id cannot be empty")
	}

	var upload Upload
	err := d.db.Where("upload_id = ?", uploadID).First(&upload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

// IsAlreadyUploaded checks if the same file content was already accepted for a project
func (d *DB) IsAlreadyUploaded(projectID, sha256 string) (bool, error) {
	var count int64
	err := d.db.Model(&Upload{}).Where(
		"project_id = ? AND sha256 = ? AND status = ?",
		projectID, sha256, StatusSuccess).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check if already uploaded: %w", err)
	}
	return count > 0, nil
}

// ListAll returns all uploads, newest first
func (d *DB) ListAll() ([]*Upload, error) {
	var uploads []*Upload
	if err := d.db.Order("uploaded_at DESC, id DESC").Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// ListByProject returns all uploads for a project, newest first
func (d *DB) ListByProject(projectID string) ([]*Upload, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id cannot be empty")
	}

	var uploads []*Upload
	if err := d.db.Where("project_id = ?", projectID).Order("uploaded_at DESC, id DESC").Find(&uploads).Error; err != nil {
		return nil, fmt.Errorf("failed to list uploads for project %s: %w", projectID, err)
	}
	return uploads, nil
}

// ExportJSON exports uploads as indented JSON bytes.
func ExportJSON(uploads []*Upload) ([]byte, error) {
	if uploads == nil {
		uploads = []*Upload{}
	}
	data, err := json.MarshalIndent(uploads, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal uploads to JSON: %w", err)
	}
	return data, nil
}
