package governor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/intentgov/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func setupSources(t *testing.T) Sources {
	t.Helper()
	dir := t.TempDir()
	src := Sources{
		Constitution: filepath.Join(dir, "constitution.yaml"),
		Criteria:     filepath.Join(dir, "criteria"),
	}
	writeFile(t, src.Constitution, largeRefundRule)
	if err := os.Mkdir(src.Criteria, 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src.Criteria, "tone.txt"), "The reply is polite.\n")
	return src
}

func TestLoadSnapshot(t *testing.T) {
	src := setupSources(t)
	snap, err := Load(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Rules) != 2 || len(snap.Criteria) != 1 || snap.Criteria[0].ID != "tone" {
		t.Fatalf("snapshot = %+v", snap)
	}

	src.Criteria = filepath.Join(t.TempDir(), "missing")
	_, err = Load(src)
	var ce *model.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReloaderSwapsSnapshot(t *testing.T) {
	src := setupSources(t)
	snap, err := Load(src)
	if err != nil {
		t.Fatal(err)
	}
	g := New(snap, nil, nil, nil, Options{Logger: zerolog.Nop()})

	r, err := NewReloader(g, src, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, src.Constitution, "rules:\n  - match: {action: refund}\n    effect: allow\n")
	waitFor(t, func() bool { return len(g.Snapshot().Rules) == 1 })

	writeFile(t, filepath.Join(src.Criteria, "honesty.txt"), "No false claims.\n")
	waitFor(t, func() bool { return len(g.Snapshot().Criteria) == 2 })

	// A broken constitution keeps the last good snapshot.
	good := g.Snapshot()
	writeFile(t, src.Constitution, "rules:\n  - match: {action: refund}\n    effect: maybe\n")
	time.Sleep(200 * time.Millisecond)
	if g.Snapshot() != good {
		t.Error("failed reload replaced the snapshot")
	}
}
