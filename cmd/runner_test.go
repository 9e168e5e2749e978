package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/repositories"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/tasks"
	tu "github.com/desertthunder/gpyt/internal/testing"
	"github.com/urfave/cli/v3"
)

// writeTestConfig writes a config using the sqlite ledger in dir.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "config.toml")
	conf := fmt.Sprintf(`
[migration]
chunk_size = 262144
page_size = 50
max_retries = 2
workers = 1
rate_limit = 0.0
visibility = "unlisted"
tags = ["home-video"]

[ledger]
backend = "sqlite"

[database]
path = %q

[log]
level = "error"
file = %q
`, filepath.Join(dir, "gpyt.db"), filepath.Join(dir, "tui.log"))

	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// runCLI runs args against a fresh runner talking to g and returns what was printed.
func runCLI(t *testing.T, g *tu.GoogleServer, config string, args ...string) (string, error) {
	t.Helper()

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		HTTPClient: g.Client(),
		PhotosURL:  g.URL,
		YouTubeURL: g.URL,
		Logger:     shared.NewLogger(io.Discard),
		Output:     output,
	})

	err := newApp(runner).Run(context.Background(), append([]string{"gpyt", "--config", config}, args...))
	return output.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Fatal("expected default config to be set")
			}
			if runner.config.Ledger.Backend != "sentinel" {
				t.Errorf("expected sentinel backend by default, got %s", runner.config.Ledger.Backend)
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			if NewRunner(RunnerOpts{}).logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			if NewRunner(RunnerOpts{}).output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "videos", "migrate", "ledger", "runs", "api", "tui"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})

	t.Run("checkServices", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})
		ok := &tu.MockService{ServiceName: "Google Photos"}
		bad := &tu.MockService{ServiceName: "YouTube", PingErr: shared.ErrTokenExpired}

		err := runner.checkServices(context.Background(), ok, bad)
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
		if ok.Pings != 1 || bad.Pings != 1 {
			t.Errorf("expected one ping each, got %d and %d", ok.Pings, bad.Pings)
		}
		if !strings.Contains(output.String(), "Google Photos: ✓") || !strings.Contains(output.String(), "YouTube: ✗") {
			t.Errorf("unexpected report %q", output.String())
		}

		if err := runner.checkServices(context.Background(), ok); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("ledgerBackend", func(t *testing.T) {
		t.Run("unknown backend", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			_, release, err := runner.ledgerBackend(context.Background(), "floppy")
			defer release()
			if !errors.Is(err, shared.ErrUnknownBackend) {
				t.Errorf("expected ErrUnknownBackend, got %v", err)
			}
		})

		t.Run("sqlite backend", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Database.Path = filepath.Join(t.TempDir(), "gpyt.db")
			runner := NewRunner(RunnerOpts{Config: config, Output: &bytes.Buffer{}})

			backend, release, err := runner.ledgerBackend(context.Background(), "SQLite")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer release()
			if _, ok := backend.(*repositories.LedgerRepository); !ok {
				t.Errorf("expected *repositories.LedgerRepository, got %T", backend)
			}
		})
	})

	t.Run("defaultTargets", func(t *testing.T) {
		tests := []struct {
			name           string
			args           []string
			wantVisibility models.Visibility
			wantTags       []string
			wantErr        bool
		}{
			{name: "from config", wantVisibility: models.VisibilityPrivate, wantTags: []string{"google-photos-to-youtube"}},
			{name: "flags override", args: []string{"--visibility", "PUBLIC", "--tags", "beach, summer"}, wantVisibility: models.VisibilityPublic, wantTags: []string{"beach", "summer"}},
			{name: "bad visibility", args: []string{"--visibility", "friends"}, wantErr: true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

				var got tasks.DefaultTargets
				var gotErr error
				cmd := &cli.Command{
					Name:  "run",
					Flags: migrateFlags(),
					Action: func(ctx context.Context, c *cli.Command) error {
						got, gotErr = runner.defaultTargets(c)
						return nil
					},
				}
				if err := cmd.Run(context.Background(), append([]string{"run"}, tt.args...)); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if tt.wantErr {
					if !errors.Is(gotErr, shared.ErrInvalidFlag) {
						t.Errorf("expected ErrInvalidFlag, got %v", gotErr)
					}
					return
				}
				if gotErr != nil {
					t.Fatalf("unexpected error: %v", gotErr)
				}
				if got.Visibility != tt.wantVisibility {
					t.Errorf("expected visibility %s, got %s", tt.wantVisibility, got.Visibility)
				}
				if strings.Join(got.Tags, ",") != strings.Join(tt.wantTags, ",") {
					t.Errorf("expected tags %v, got %v", tt.wantTags, got.Tags)
				}
			})
		}
	})

	t.Run("runItems", func(t *testing.T) {
		result := &tasks.RunResult{Items: []tasks.ItemResult{
			{Key: "a", Reference: "https://youtu.be/1", Bytes: 10},
			{Key: "b", Reference: "https://youtu.be/0", Skipped: true},
			{Key: "c", Declined: true},
			{Key: "d", Pending: true},
			{Key: "e", Err: &tasks.ItemError{Key: "e", Err: shared.ErrUploadFailed}},
		}}

		items := runItems(result)
		if len(items) != 4 {
			t.Fatalf("expected declined item to be left out, got %d items", len(items))
		}

		want := []models.RunItemStatus{models.ItemMigrated, models.ItemSkipped, models.ItemPending, models.ItemFailed}
		for i, item := range items {
			if item.Status != want[i] {
				t.Errorf("item %s: expected %s, got %s", item.SourceKey, want[i], item.Status)
			}
		}
		if items[3].ErrorMessage == "" {
			t.Error("expected failed item to carry its error")
		}
	})
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	config := writeTestConfig(t, dir)
	g := tu.NewGoogleServer(t,
		tu.FakeVideo{ID: "p1", Filename: "p1.mp4", Description: "beach", MimeType: "video/mp4", CreationTime: "2019-05-04T12:00:00Z", Data: tu.Payload(600_000)},
		tu.FakeVideo{ID: "p2", Filename: "p2.mp4", MimeType: "video/mp4", CreationTime: "2019-06-01T08:30:00Z", Data: tu.Payload(100_000)},
	)

	t.Run("setup config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "new.toml")
		out, err := runCLI(t, g, path, "setup", "config")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(out, "gpyt auth login") {
			t.Errorf("expected next steps, got %q", out)
		}

		if _, err := runCLI(t, g, path, "setup", "config"); err == nil {
			t.Error("expected error when config exists")
		}
		if _, err := runCLI(t, g, path, "setup", "config", "--force"); err != nil {
			t.Errorf("expected --force to overwrite, got %v", err)
		}
	})

	t.Run("setup database", func(t *testing.T) {
		out, err := runCLI(t, g, config, "setup", "database")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Database ready") {
			t.Errorf("expected database summary, got %q", out)
		}
	})

	t.Run("auth status", func(t *testing.T) {
		out, err := runCLI(t, g, config, "auth", "status")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Test Channel (UC123)") {
			t.Errorf("expected channel, got %q", out)
		}
	})

	t.Run("videos list", func(t *testing.T) {
		out, err := runCLI(t, g, config, "videos", "list")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Found 2 videos") || !strings.Contains(out, g.ProductURL("p2")) {
			t.Errorf("unexpected listing %q", out)
		}
	})

	t.Run("migrate run", func(t *testing.T) {
		out, err := runCLI(t, g, config, "migrate", "run", "--max-items", "1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Migrated: 1") {
			t.Errorf("expected one migrated video, got %q", out)
		}
		if got := g.UploadedTitle("yt1"); got != "beach" {
			t.Errorf("expected title 'beach', got %q", got)
		}

		out, err = runCLI(t, g, config, "migrate", "run", "--dry-run")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Already migrated: 1") || !strings.Contains(out, "Pending: 1") {
			t.Errorf("expected dry run to report one pending video, got %q", out)
		}
		if g.UploadCount() != 1 {
			t.Errorf("expected dry run to upload nothing, got %d uploads", g.UploadCount())
		}

		out, err = runCLI(t, g, config, "migrate", "run")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Migrated: 1") || !strings.Contains(out, "Already migrated: 1") {
			t.Errorf("expected the remaining video to migrate, got %q", out)
		}
		if g.UploadCount() != 2 {
			t.Errorf("expected 2 uploads, got %d", g.UploadCount())
		}
	})

	t.Run("runs", func(t *testing.T) {
		out, err := runCLI(t, g, config, "runs", "list")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"#1 completed", "#2 completed", "#3 completed"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in %q", want, out)
			}
		}

		db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: filepath.Join(dir, "gpyt.db")})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		runs, err := repositories.NewRunRepository(db).List(map[string]any{"limit": 1})
		db.Close()
		if err != nil || len(runs) != 1 {
			t.Fatalf("expected latest run, got %v (%v)", runs, err)
		}

		out, err = runCLI(t, g, config, "runs", "show", runs[0].ID())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "migrated  "+g.ProductURL("p2")) || !strings.Contains(out, "skipped   "+g.ProductURL("p1")) {
			t.Errorf("expected item outcomes, got %q", out)
		}
	})

	t.Run("ledger", func(t *testing.T) {
		export := filepath.Join(dir, "ledger.json")
		if _, err := runCLI(t, g, config, "ledger", "export", "--output", export); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		tu.AssertFileExists(t, export)

		if _, err := runCLI(t, g, config, "ledger", "delete", g.ProductURL("p1")); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := runCLI(t, g, config, "ledger", "delete", g.ProductURL("p1")); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound deleting twice, got %v", err)
		}

		out, err := runCLI(t, g, config, "ledger", "import", export)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if !strings.Contains(out, "Imported 1 of 2 records (2 total)") {
			t.Errorf("unexpected import summary %q", out)
		}

		out, err = runCLI(t, g, config, "ledger", "show", "--format", "csv")
		if err != nil {
			t.Fatalf("show failed: %v", err)
		}
		if !strings.Contains(out, g.ProductURL("p1")) || !strings.Contains(out, "https://youtu.be/yt1") {
			t.Errorf("expected restored record, got %q", out)
		}
		for _, line := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
			if strings.HasSuffix(line, ",") {
				t.Errorf("expected created at on every record, got %q", line)
			}
		}
	})

	t.Run("api get", func(t *testing.T) {
		out, err := runCLI(t, g, config, "api", "get", "--host", "youtube", "/youtube/v3/channels")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "UC123") {
			t.Errorf("expected channel JSON, got %q", out)
		}

		if _, err := runCLI(t, g, config, "api", "get", "/v1/nowhere"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest for a 404, got %v", err)
		}
	})

	t.Run("unknown backend flag", func(t *testing.T) {
		if _, err := runCLI(t, g, config, "ledger", "show", "--backend", "floppy"); !errors.Is(err, shared.ErrUnknownBackend) {
			t.Errorf("expected ErrUnknownBackend, got %v", err)
		}
	})
}
