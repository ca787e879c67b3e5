package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
stream:
  org_name: acme
`

const watcherUpdatedYAML = `
server:
  log_level: debug
stream:
  org_name: acme
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// rewrite replaces the file content and bumps its mtime so the change is
// seen regardless of filesystem timestamp granularity.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	writeFile(t, path, content)
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

func newWatchedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "earshot.yaml")
	writeFile(t, path, watcherValidYAML)
	return path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, err := config.NewWatcher(newWatchedFile(t), nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo || cfg.Stream.OrgName != "acme" {
		t.Errorf("Current() = %+v", cfg)
	}
	if w.Check() {
		t.Error("Check() on an untouched file = true")
	}
}

func TestWatcher_Check(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		applied   bool
		wantLevel config.LogLevel
	}{
		{name: "edit", content: watcherUpdatedYAML, applied: true, wantLevel: config.LogDebug},
		{name: "invalid edit", content: watcherInvalidYAML, wantLevel: config.LogInfo},
		{name: "touch only", content: watcherValidYAML, wantLevel: config.LogInfo},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := newWatchedFile(t)

			var got []config.ConfigDiff
			w, err := config.NewWatcher(path, func(old, next *config.Config) {
				got = append(got, config.Diff(old, next))
			})
			if err != nil {
				t.Fatalf("NewWatcher: %v", err)
			}

			rewrite(t, path, tc.content)
			if applied := w.Check(); applied != tc.applied {
				t.Errorf("Check() = %v, want %v", applied, tc.applied)
			}
			if lvl := w.Current().Server.LogLevel; lvl != tc.wantLevel {
				t.Errorf("Current() log level = %q, want %q", lvl, tc.wantLevel)
			}
			if !tc.applied {
				if len(got) != 0 {
					t.Errorf("onChange called %d times, want 0", len(got))
				}
				return
			}
			if len(got) != 1 || !got[0].LogLevelChanged || got[0].NewLogLevel != config.LogDebug {
				t.Errorf("diffs = %+v, want one log level change to debug", got)
			}
			if len(got[0].RestartRequired) != 0 {
				t.Errorf("RestartRequired = %v, want none", got[0].RestartRequired)
			}
			if w.Check() {
				t.Error("second Check() without a further edit = true")
			}
		})
	}
}

func TestWatcher_Run(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	changes := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, next *config.Config) { changes <- next })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	rewrite(t, path, watcherUpdatedYAML)
	select {
	case cfg := <-changes:
		if cfg.Server.LogLevel != config.LogDebug {
			t.Errorf("reloaded log level = %q, want debug", cfg.Server.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reload not observed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/earshot.yaml", nil); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
