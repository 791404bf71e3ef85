package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/factopt/pkg/engine"
)

type reloadEvent struct {
	factory *engine.Factory
	err     error
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plant.yaml")
	if err := os.WriteFile(path, []byte(plantYAML), 0o644); err != nil {
		t.Fatalf("failed to write factory: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan reloadEvent, 8)
	w := NewWatcher(newTestLoader(), path, zerolog.Nop()).WithDebounce(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func(_ context.Context, f *engine.Factory, err error) {
			events <- reloadEvent{f, err}
		})
	}()

	// waitFor skips reloads until one satisfies pred. Editors and
	// os.WriteFile may produce more than one burst of events per save.
	waitFor := func(desc string, pred func(reloadEvent) bool) reloadEvent {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev := <-events:
				if pred(ev) {
					return ev
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", desc)
				return reloadEvent{}
			}
		}
	}

	first := waitFor("initial load", func(ev reloadEvent) bool { return true })
	if first.err != nil || first.factory.Name != "plant" || !first.factory.Frozen() {
		t.Fatalf("initial load = %+v", first)
	}

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write notes: %v", err)
	}

	renamed := strings.Replace(plantYAML, "name: plant", "name: plant-v2", 1)
	if err := os.WriteFile(path, []byte(renamed), 0o644); err != nil {
		t.Fatalf("failed to rewrite factory: %v", err)
	}
	waitFor("plant-v2", func(ev reloadEvent) bool {
		return ev.err == nil && ev.factory.Name == "plant-v2"
	})

	broken := strings.Replace(plantYAML, "horizon: 3", "horizon: 0", 1)
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("failed to rewrite factory: %v", err)
	}
	third := waitFor("reload error", func(ev reloadEvent) bool { return ev.err != nil })
	if !engine.IsConfiguration(third.err) || third.factory != nil {
		t.Fatalf("broken reload = %+v, want configuration error", third)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(newTestLoader(), filepath.Join(t.TempDir(), "gone", "plant.yaml"), zerolog.Nop())
	err := w.Watch(context.Background(), func(context.Context, *engine.Factory, error) {})
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
