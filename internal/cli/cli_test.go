package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/clean-dependency-project/wagoctl/internal/clamav"
	"github.com/clean-dependency-project/wagoctl/internal/config"
	"github.com/clean-dependency-project/wagoctl/internal/storage"
	"github.com/clean-dependency-project/wagoctl/internal/wago"
)

const testGameData = `{"patches":{
	"retail":["10.2.6","10.2.5"],
	"cata":[],
	"wotlk":["3.4.3"],
	"bc":["2.5.4"],
	"classic":["1.15.1","1.15.2"]
}}`

// fakeWago is an httptest-backed stand-in for addons.wago.io.
type fakeWago struct {
	server *httptest.Server

	mu           sync.Mutex
	requests     int
	uploads      int
	uploadStatus int
	lastAuth     string
	lastProject  string
	lastFilename string
	lastMetadata wago.AddonMetadata
}

func newFakeWago(t *testing.T) *fakeWago {
	t.Helper()

	api := &fakeWago{uploadStatus: http.StatusCreated}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/data/game", func(w http.ResponseWriter, r *http.Request) {
		api.count()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, testGameData)
	})
	mux.HandleFunc("GET /api/data/categories", func(w http.ResponseWriter, r *http.Request) {
		api.count()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":3,"display_name":"Combat"},{"id":1,"display_name":"Achievements"}]`)
	})
	mux.HandleFunc("POST /api/projects/{id}/version", func(w http.ResponseWriter, r *http.Request) {
		api.count()
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		api.mu.Lock()
		api.uploads++
		api.lastAuth = r.Header.Get("Authorization")
		api.lastProject = r.PathValue("id")
		if files := r.MultipartForm.File["file"]; len(files) == 1 {
			api.lastFilename = files[0].Filename
		}
		_ = json.Unmarshal([]byte(r.FormValue("metadata")), &api.lastMetadata)
		status := api.uploadStatus
		api.mu.Unlock()

		w.WriteHeader(status)
		if status < 300 {
			_, _ = io.WriteString(w, `{"id":"v-123"}`)
		} else {
			_, _ = io.WriteString(w, `{"message":"label already exists"}`)
		}
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeWago) count() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests++
}

// apiCalls is a copy of what the fake API has seen so far.
type apiCalls struct {
	requests     int
	uploads      int
	lastAuth     string
	lastProject  string
	lastFilename string
	lastMetadata wago.AddonMetadata
}

func (a *fakeWago) snapshot() apiCalls {
	a.mu.Lock()
	defer a.mu.Unlock()
	return apiCalls{
		requests:     a.requests,
		uploads:      a.uploads,
		lastAuth:     a.lastAuth,
		lastProject:  a.lastProject,
		lastFilename: a.lastFilename,
		lastMetadata: a.lastMetadata,
	}
}

func (a *fakeWago) setUploadStatus(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploadStatus = status
}

// fakeNotes serves fixed release notes.
type fakeNotes struct {
	notes string
	err   error
	tags  []string
	repos []string
}

func (n *fakeNotes) ReleaseNotes(_ context.Context, tag string) (string, error) {
	n.tags = append(n.tags, tag)
	return n.notes, n.err
}

// testEnv runs the CLI against a fake API with a temp config and history DB.
type testEnv struct {
	t          *testing.T
	api        *fakeWago
	dir        string
	configPath string
	dbPath     string
	apiKey     string
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	factories  Factories
	notes      *fakeNotes
	scanRunner *clamav.ScriptedRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		t:          t,
		api:        newFakeWago(t),
		dir:        dir,
		configPath: filepath.Join(dir, "wagoctl.yaml"),
		dbPath:     filepath.Join(dir, "history.db"),
		apiKey:     "test-key",
		notes:      &fakeNotes{notes: "- Fixed classic taint"},
		scanRunner: &clamav.ScriptedRunner{},
	}

	env.writeConfig(fmt.Sprintf(`version: "1.0"
storage:
  database_path: %q
projects:
  myaddon: "aNLbKjdG"
release:
  github_repository: "owner/myaddon"
`, env.dbPath))

	env.factories = DefaultFactories()
	env.factories.ReleaseNotes = func(_, repository string) (ReleaseNotesSource, error) {
		env.notes.repos = append(env.notes.repos, repository)
		return env.notes, nil
	}
	env.factories.Scanner = func(image string, l *slog.Logger) Scanner {
		return clamav.NewDockerScanner(env.scanRunner, image, l)
	}
	return env
}

func (e *testEnv) writeConfig(content string) {
	e.t.Helper()
	if err := os.WriteFile(e.configPath, []byte(content), 0644); err != nil {
		e.t.Fatalf("failed to write config: %v", err)
	}
}

func (e *testEnv) writeFile(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		e.t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// run executes one command line. Global flags are added in front of args.
func (e *testEnv) run(args ...string) error {
	e.t.Helper()
	e.stdout.Reset()
	e.stderr.Reset()

	app := newApp(e.factories)
	app.Writer = &e.stdout
	app.ErrWriter = &e.stderr

	full := []string{"wagoctl",
		"--config", e.configPath,
		"--base-url", e.api.server.URL + "/api",
		"--log-level", "debug",
		"--api-key", e.apiKey,
	}
	return app.Run(append(full, args...))
}

func (e *testEnv) history() []*storage.Upload {
	e.t.Helper()
	db, err := storage.InitDB(storage.Config{DatabasePath: e.dbPath, LogLevel: "silent"})
	if err != nil {
		e.t.Fatalf("failed to open history: %v", err)
	}
	defer func() { _ = db.Close() }()

	uploads, err := db.ListAll()
	if err != nil {
		e.t.Fatalf("failed to list history: %v", err)
	}
	return uploads
}

func TestGameVersionsCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all flavors sorted",
			args: []string{"game-versions"},
			want: []string{"Retail:", "10.2.5, 10.2.6", "BC:", "2.5.4", "Wotlk:", "Cata:", "Classic:", "1.15.1, 1.15.2"},
		},
		{
			name:    "latest only",
			args:    []string{"game-versions", "--latest"},
			want:    []string{"10.2.6", "1.15.2"},
			notWant: []string{"10.2.5", "1.15.1"},
		},
		{
			name:    "single flavor",
			args:    []string{"game-versions", "--flavor", "classic"},
			want:    []string{"Classic:"},
			notWant: []string{"Retail:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if err := env.run(tt.args...); err != nil {
				t.Fatalf("run() error: %v", err)
			}
			out := env.stdout.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out, nw) {
					t.Errorf("output should not contain %q:\n%s", nw, out)
				}
			}
		})
	}
}

func TestGameVersionsCommand_JSON(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run("game-versions", "--flavor", "retail", "--latest", "--output", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}

	var listing []flavorPatches
	if err := json.Unmarshal(env.stdout.Bytes(), &listing); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, env.stdout.String())
	}
	if len(listing) != 1 || listing[0].Flavor != wago.FlavorRetail || len(listing[0].Patches) != 1 || listing[0].Patches[0] != "10.2.6" {
		t.Errorf("unexpected listing: %+v", listing)
	}
}

func TestGameVersionsCommand_Errors(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run("game-versions", "--flavor", "vanilla"); err == nil {
		t.Error("expected error for unknown flavor")
	}
	if err := env.run("game-versions", "--output", "yaml"); err == nil {
		t.Error("expected error for unknown output format")
	}

	env.api.server.Close()
	err := env.run("game-versions")
	if !errors.Is(err, wago.ErrTransport) {
		t.Errorf("expected ErrTransport when API is down, got %v", err)
	}
}

func TestCategoriesCommand(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run("categories"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	out := env.stdout.String()
	if !strings.Contains(out, "Combat") || strings.Index(out, "Combat") > strings.Index(out, "Achievements") {
		t.Errorf("expected categories in API order:\n%s", out)
	}

	if err := env.run("categories", "-o", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	var categories []wago.AddonCategory
	if err := json.Unmarshal(env.stdout.Bytes(), &categories); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(categories) != 2 || categories[0].ID != 3 {
		t.Errorf("unexpected categories: %+v", categories)
	}
}

func TestValidateCommand(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run("validate", "--label", "v1.0.0", "--retail", "latest,10.2.5", "--classic", "1.15.1", "-o", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	var md wago.AddonMetadata
	if err := json.Unmarshal(env.stdout.Bytes(), &md); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, env.stdout.String())
	}
	if strings.Join(md.SupportedRetailPatches, ",") != "10.2.6,10.2.5" {
		t.Errorf("retail patches = %v, want latest resolved to 10.2.6", md.SupportedRetailPatches)
	}
	if md.Stability != wago.StabilityStable {
		t.Errorf("stability = %q, want stable default", md.Stability)
	}

	err := env.run("validate", "--label", "v1.0.0", "--retail", "10.2.5", "--classic", "9.9.9")
	var vErr *wago.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Flavor != wago.FlavorClassic || vErr.Patch != "9.9.9" {
		t.Errorf("ValidationError = %+v", vErr)
	}
}

func TestValidateCommand_MetadataFile(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("metadata.json", `{
		"label": "v2.0.0",
		"stability": "beta",
		"changelog": "from file",
		"supported_retail_patches": ["10.2.5"]
	}`)

	if err := env.run("validate", "--metadata", path, "--stability", "alpha", "-o", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	var md wago.AddonMetadata
	if err := json.Unmarshal(env.stdout.Bytes(), &md); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if md.Label != "v2.0.0" || md.Stability != wago.StabilityAlpha || md.Changelog != "from file" {
		t.Errorf("flags should override file values only where set: %+v", md)
	}

	bad := env.writeFile("bad.json", `{"label":"x","stability":"gamma"}`)
	if err := env.run("validate", "--metadata", bad); err == nil {
		t.Error("expected error for invalid stability in metadata file")
	}
}

func TestUploadCommand_Success(t *testing.T) {
	env := newTestEnv(t)
	archive := env.writeFile("MyAddon-v1.2.3.zip", "zip bytes")

	err := env.run("upload", "--project", "myaddon", "--file", archive,
		"--retail", "latest", "--changelog", "- Initial release")
	if err != nil {
		t.Fatalf("run() error: %v\nlogs:\n%s", err, env.stderr.String())
	}

	got := env.api.snapshot()
	if got.uploads != 1 {
		t.Fatalf("expected 1 upload, got %d", got.uploads)
	}
	if got.lastAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", got.lastAuth)
	}
	if got.lastProject != "aNLbKjdG" {
		t.Errorf("project alias not resolved: %q", got.lastProject)
	}
	if got.lastFilename != "MyAddon-v1.2.3.zip" {
		t.Errorf("filename = %q", got.lastFilename)
	}
	if got.lastMetadata.Label != "MyAddon-v1.2.3" {
		t.Errorf("label = %q, want archive name default", got.lastMetadata.Label)
	}
	if strings.Join(got.lastMetadata.SupportedRetailPatches, ",") != "10.2.6" {
		t.Errorf("retail patches = %v", got.lastMetadata.SupportedRetailPatches)
	}

	if !strings.Contains(env.stdout.String(), "Uploaded MyAddon-v1.2.3 to project aNLbKjdG (HTTP 201") {
		t.Errorf("unexpected output: %s", env.stdout.String())
	}

	uploads := env.history()
	if len(uploads) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(uploads))
	}
	row := uploads[0]
	if row.Status != storage.StatusSuccess || row.StatusCode != http.StatusCreated || row.RemoteID != "v-123" {
		t.Errorf("unexpected history row: %+v", row)
	}
	if !strings.Contains(env.stderr.String(), row.UploadID) {
		t.Errorf("logs should carry the upload id %s", row.UploadID)
	}
}

func TestUploadCommand_Preconditions(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		env := newTestEnv(t)
		env.apiKey = ""
		archive := env.writeFile("a.zip", "zip")

		err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5")
		if !errors.Is(err, wago.ErrAuthentication) {
			t.Errorf("expected ErrAuthentication, got %v", err)
		}
		if n := env.api.snapshot().requests; n != 0 {
			t.Errorf("expected no requests, got %d", n)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run("upload", "--project", "p", "--file", filepath.Join(env.dir, "missing.zip"))
		if !errors.Is(err, wago.ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
		if n := env.api.snapshot().requests; n != 0 {
			t.Errorf("expected no requests, got %d", n)
		}
	})

	t.Run("invalid patch", func(t *testing.T) {
		env := newTestEnv(t)
		archive := env.writeFile("a.zip", "zip")
		err := env.run("upload", "--project", "p", "--file", archive, "--retail", "9.0.0")
		var vErr *wago.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("expected ValidationError, got %v", err)
		}
		if n := env.api.snapshot().uploads; n != 0 {
			t.Errorf("expected no upload POST, got %d", n)
		}
		if rows := env.history(); len(rows) != 0 {
			t.Errorf("validation failures are not recorded, got %d rows", len(rows))
		}
	})

	t.Run("conflicting changelog sources", func(t *testing.T) {
		env := newTestEnv(t)
		archive := env.writeFile("a.zip", "zip")
		err := env.run("upload", "--project", "p", "--file", archive,
			"--changelog", "a", "--changelog-from-github")
		if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
			t.Errorf("expected mutually exclusive error, got %v", err)
		}
	})
}

func TestUploadCommand_Rejected(t *testing.T) {
	env := newTestEnv(t)
	env.api.setUploadStatus(http.StatusUnprocessableEntity)
	archive := env.writeFile("a.zip", "zip")

	err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5")
	if !errors.Is(err, wago.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	var apiErr *wago.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected APIError with 422, got %v", err)
	}

	rows := env.history()
	if len(rows) != 1 || rows[0].Status != storage.StatusFailed || rows[0].StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected one failed history row, got %+v", rows)
	}
	if !strings.Contains(rows[0].ErrorMessage, "label already exists") {
		t.Errorf("ErrorMessage = %q", rows[0].ErrorMessage)
	}
}

func TestUploadCommand_DryRun(t *testing.T) {
	env := newTestEnv(t)
	env.apiKey = ""
	archive := env.writeFile("a.zip", "zip")

	if err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5", "--dry-run", "-o", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}

	var result UploadResult
	if err := json.Unmarshal(env.stdout.Bytes(), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, env.stdout.String())
	}
	if !result.DryRun || !result.Success || result.SHA256 == "" {
		t.Errorf("unexpected result: %+v", result)
	}
	if n := env.api.snapshot().uploads; n != 0 {
		t.Errorf("dry run must not upload, got %d", n)
	}

	rows := env.history()
	if len(rows) != 1 || rows[0].Status != storage.StatusDryRun {
		t.Errorf("expected one dry_run history row, got %+v", rows)
	}
}

func TestUploadCommand_AlreadyUploaded(t *testing.T) {
	env := newTestEnv(t)
	archive := env.writeFile("a.zip", "same bytes")
	args := []string{"upload", "--project", "p", "--file", archive, "--retail", "10.2.5"}

	if err := env.run(args...); err != nil {
		t.Fatalf("first upload error: %v", err)
	}
	if err := env.run(args...); !errors.Is(err, errAlreadyUploaded) {
		t.Fatalf("expected errAlreadyUploaded, got %v", err)
	}
	if n := env.api.snapshot().uploads; n != 1 {
		t.Errorf("duplicate must not be sent, got %d uploads", n)
	}

	if err := env.run(append(args, "--force")...); err != nil {
		t.Fatalf("forced upload error: %v", err)
	}
	if n := env.api.snapshot().uploads; n != 2 {
		t.Errorf("expected forced upload to be sent, got %d uploads", n)
	}
}

func TestUploadCommand_ChangelogFromGitHub(t *testing.T) {
	env := newTestEnv(t)
	archive := env.writeFile("a.zip", "zip")

	err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5",
		"--changelog-from-github", "--tag", "v1.2.3")
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if got := env.api.snapshot().lastMetadata.Changelog; got != "- Fixed classic taint" {
		t.Errorf("changelog = %q", got)
	}
	if len(env.notes.tags) != 1 || env.notes.tags[0] != "v1.2.3" {
		t.Errorf("release notes requested for %v", env.notes.tags)
	}
	if len(env.notes.repos) != 1 || env.notes.repos[0] != "owner/myaddon" {
		t.Errorf("expected release.github_repository to be used, got %v", env.notes.repos)
	}

	env.notes.err = errors.New("rate limited")
	err = env.run("upload", "--project", "p", "--file", archive, "--force", "--changelog-from-github", "--github-repository", "owner/repo")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected release notes error, got %v", err)
	}
	if got := env.notes.repos[len(env.notes.repos)-1]; got != "owner/repo" {
		t.Errorf("--github-repository should win over config, got %q", got)
	}
}

func TestUploadCommand_ChangelogFromGitHubNeedsRepository(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(fmt.Sprintf("version: \"1.0\"\nstorage:\n  database_path: %q\n", env.dbPath))
	archive := env.writeFile("a.zip", "zip")

	err := env.run("upload", "--project", "p", "--file", archive, "--changelog-from-github")
	if err == nil || !strings.Contains(err.Error(), "--github-repository") {
		t.Errorf("expected missing repository error, got %v", err)
	}
	if len(env.notes.repos) != 0 {
		t.Errorf("no GitHub client should be built, got %v", env.notes.repos)
	}
}

func TestUploadCommand_ChangelogFile(t *testing.T) {
	env := newTestEnv(t)
	archive := env.writeFile("a.zip", "zip")
	changelog := env.writeFile("CHANGELOG.md", "\n## v1\n- things\n\n")

	if err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5", "--changelog-file", changelog); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if got := env.api.snapshot().lastMetadata.Changelog; got != "## v1\n- things" {
		t.Errorf("changelog = %q", got)
	}
}

func TestUploadCommand_Scan(t *testing.T) {
	scanScript := func(output string, exitErr error) []clamav.ScriptedResponse {
		return []clamav.ScriptedResponse{
			{Output: []byte("Docker version 27.0.3")},
			{},
			{Output: []byte("ClamAV 1.5.1/27805/Mon Oct 27 09:50:30 2025")},
			{Output: []byte(output), Err: exitErr},
		}
	}

	t.Run("clean", func(t *testing.T) {
		env := newTestEnv(t)
		archive := env.writeFile("a.zip", "zip")
		env.scanRunner.Responses = scanScript("/scan/a.zip: OK", nil)

		if err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5", "--scan", "-o", "json"); err != nil {
			t.Fatalf("run() error: %v", err)
		}
		var result UploadResult
		if err := json.Unmarshal(env.stdout.Bytes(), &result); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if !result.MalwareScanned {
			t.Error("expected MalwareScanned=true")
		}
		if rows := env.history(); len(rows) != 1 || !rows[0].MalwareScanned {
			t.Errorf("history should record the scan: %+v", rows)
		}
	})

	t.Run("infected", func(t *testing.T) {
		env := newTestEnv(t)
		archive := env.writeFile("a.zip", "zip")
		env.scanRunner.Responses = scanScript("/scan/a.zip: Win.Test.EICAR_HDB-1 FOUND", exitStatus(1))

		err := env.run("upload", "--project", "p", "--file", archive, "--retail", "10.2.5", "--scan")
		if !errors.Is(err, clamav.ErrInfected) {
			t.Fatalf("expected ErrInfected, got %v", err)
		}
		if n := env.api.snapshot().requests; n != 0 {
			t.Errorf("infected archive must not reach the API, got %d requests", n)
		}
	})
}

// exitStatus mimics the exit error of a finished process.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitStatus) ExitCode() int { return int(e) }

func TestHistoryCommand(t *testing.T) {
	env := newTestEnv(t)
	archive := env.writeFile("a.zip", "zip")

	if err := env.run("history"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if !strings.Contains(env.stdout.String(), "No uploads recorded.") {
		t.Errorf("unexpected empty output: %s", env.stdout.String())
	}

	if err := env.run("upload", "--project", "myaddon", "--file", archive, "--retail", "10.2.5", "--label", "v1"); err != nil {
		t.Fatalf("upload error: %v", err)
	}

	if err := env.run("history", "--project", "myaddon"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{"aNLbKjdG", "success", "PATCHES", "retail 10.2.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}

	if err := env.run("history", "--project", "other", "-o", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if strings.TrimSpace(env.stdout.String()) != "[]" {
		t.Errorf("expected empty JSON list, got %s", env.stdout.String())
	}
}

func TestHistoryShowCommand(t *testing.T) {
	env := newTestEnv(t)
	archive := env.writeFile("a.zip", "zip")

	if err := env.run("upload", "--project", "myaddon", "--file", archive,
		"--retail", "10.2.5", "--classic", "1.15.1", "--label", "v1", "-o", "json"); err != nil {
		t.Fatalf("upload error: %v", err)
	}
	var result UploadResult
	if err := json.Unmarshal(env.stdout.Bytes(), &result); err != nil {
		t.Fatalf("upload output is not JSON: %v", err)
	}

	if err := env.run("history", "show", result.UploadID); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{result.UploadID, "aNLbKjdG", "retail 10.2.5; classic 1.15.1", "v-123", "201"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if err := env.run("history", "show", result.UploadID, "-o", "json"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	var upload storage.Upload
	if err := json.Unmarshal(env.stdout.Bytes(), &upload); err != nil {
		t.Fatalf("show output is not JSON: %v", err)
	}
	if upload.UploadID != result.UploadID || upload.RemoteID != "v-123" {
		t.Errorf("unexpected upload: %+v", upload)
	}

	err := env.run("history", "show", "no-such-id")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := env.run("history", "show"); err == nil {
		t.Error("expected usage error without an upload id")
	}
}

func TestConfigInitCommand(t *testing.T) {
	env := newTestEnv(t)
	env.configPath = filepath.Join(env.dir, "new.yaml")

	if err := env.run("config", "init"); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if !strings.Contains(env.stdout.String(), env.configPath) {
		t.Errorf("unexpected output: %s", env.stdout.String())
	}

	cfg, err := config.LoadConfig(env.configPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.API.BaseURL != config.DefaultBaseURL || cfg.Storage.DatabasePath != config.DefaultDatabasePath {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if err := env.run("config", "init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}
	if err := env.run("config", "init", "--force"); err != nil {
		t.Errorf("--force should overwrite: %v", err)
	}
}

func TestHistoryCommand_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(`version: "1.0"`)

	err := env.run("history")
	if err == nil || !strings.Contains(err.Error(), "history is disabled") {
		t.Errorf("expected disabled history error, got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(`api: {timeout: "soon"}`)

	if err := env.run("categories"); err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("expected config error, got %v", err)
	}
}
