package criteria

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/intentgov/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDirectoryOnePerFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tone.txt", "The reply is polite.\n")
	writeFile(t, dir, "accuracy.md", "  The reply states the refunded amount.  ")
	writeFile(t, dir, "notes.yaml", "ignored: true")
	writeFile(t, dir, ".hidden.txt", "ignored")

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"accuracy", "tone"}, IDs(got)); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
	if got[0].Text != "The reply states the refunded amount." {
		t.Errorf("text not trimmed: %q", got[0].Text)
	}
}

func TestLoadDirectoryReadsEachLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "accuracy.txt", "# What actually happened.\nhonest-outcome: No claims about actions that were not performed.\namounts: Amounts match the request.\n")
	writeFile(t, dir, "style.txt", "# house style\nShort sentences.\nNo jargon.\n")
	writeFile(t, dir, "tone.txt", "# single criterion\nThe reply is polite.\n")

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []model.Criterion{
		{ID: "honest-outcome", Text: "No claims about actions that were not performed.", Source: filepath.Join(dir, "accuracy.txt")},
		{ID: "amounts", Text: "Amounts match the request.", Source: filepath.Join(dir, "accuracy.txt")},
		{ID: "style-1", Text: "Short sentences.", Source: filepath.Join(dir, "style.txt")},
		{ID: "style-2", Text: "No jargon.", Source: filepath.Join(dir, "style.txt")},
		{ID: "tone", Text: "The reply is polite.", Source: filepath.Join(dir, "tone.txt")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("criteria (-want +got):\n%s", diff)
	}
}

func TestLoadShippedCriteria(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "criteria"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"honest-outcome", "amounts", "tone", "clarity", "next-step"}
	if diff := cmp.Diff(want, IDs(got)); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
	for _, c := range got {
		if strings.Contains(c.Text, "#") || strings.Contains(c.Text, "\n") {
			t.Errorf("criterion %s carries comment or extra lines: %q", c.ID, c.Text)
		}
	}
}

func TestDuplicateIDAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "tone: Polite.\nclarity: Plain words.\n")
	writeFile(t, dir, "b.txt", "tone: Warm.\n")

	_, err := Load(dir)
	var ce *model.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestParseUnlabelledLineBeforeNumbered(t *testing.T) {
	data := []byte("Answer in English.\n1. Never promise unperformed refunds.\n2. Mention the next step.\nKeep it short.\n")
	got, err := Parse(data, "rules.txt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"rules-3", "rules-1", "rules-2", "rules-4"}
	if diff := cmp.Diff(want, IDs(got)); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
	if got[0].Text != "Answer in English." {
		t.Errorf("text = %q", got[0].Text)
	}
}

func TestParseLabels(t *testing.T) {
	data := []byte(`# criteria for support replies
brand-voice: Replies stay warm and on-brand.

1. Never promise refunds that were not performed.
2) Mention the next step for the customer.
Keep it under 120 words.
`)
	got, err := Parse(data, "/etc/intentgov/support.txt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []model.Criterion{
		{ID: "brand-voice", Text: "Replies stay warm and on-brand.", Source: "/etc/intentgov/support.txt"},
		{ID: "support-1", Text: "Never promise refunds that were not performed.", Source: "/etc/intentgov/support.txt"},
		{ID: "support-2", Text: "Mention the next step for the customer.", Source: "/etc/intentgov/support.txt"},
		{ID: "support-4", Text: "Keep it under 120 words.", Source: "/etc/intentgov/support.txt"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("criteria (-want +got):\n%s", diff)
	}
}

func TestDuplicateIDIsConfigError(t *testing.T) {
	_, err := Parse([]byte("tone: a\ntone: b\n"), "dup.txt")
	var ce *model.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestEmptySourcesAreConfigErrors(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.txt", "# only comments\n\n")

	for name, path := range map[string]string{
		"empty file":  empty,
		"missing":     filepath.Join(dir, "nope"),
		"no criteria": t.TempDir(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(path)
			var ce *model.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestEmptyCriterionFileInDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tone.txt", "   \n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for blank criterion file")
	}
}
