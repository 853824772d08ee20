package criteria

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/intentgov/internal/model"
)

// criterionExts are the file extensions read when the source is a directory.
var criterionExts = map[string]bool{
	".txt": true,
	".md":  true,
}

var (
	// "brand-voice: Replies stay polite" -> id brand-voice
	namedLabel = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.-]*)\s*:\s+(.+)$`)
	// "1. text" or "2) text" -> id <base>-1
	numberLabel = regexp.MustCompile(`^(\d+)[.)]\s+(.+)$`)
)

// Load reads criteria from path. A regular file yields one criterion per
// non-empty, non-comment line. A directory reads every *.txt/*.md file the
// same way, in name order; a file holding a single unlabelled criterion is
// identified by its base name.
func Load(path string) ([]model.Criterion, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.NewConfigError(path, "criteria source not found")
		}
		return nil, &model.ConfigError{Source: path, Err: err}
	}

	var out []model.Criterion
	if info.IsDir() {
		out, err = loadDir(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			out, err = Parse(data, path)
		}
	}
	if err != nil {
		var ce *model.ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &model.ConfigError{Source: path, Err: err}
	}
	return out, nil
}

func loadDir(dir string) ([]model.Criterion, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read criteria dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if criterionExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []model.Criterion
	seen := make(map[string]string, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read criterion %s: %w", name, err)
		}
		parsed, err := parseFile(data, path, true)
		if err != nil {
			return nil, err
		}
		for _, c := range parsed {
			if prev, dup := seen[c.ID]; dup {
				return nil, model.NewConfigError(path, "duplicate criterion id %q (also in %s)", c.ID, prev)
			}
			seen[c.ID] = path
			out = append(out, c)
		}
	}

	if len(out) == 0 {
		return nil, model.NewConfigError(dir, "no criteria found (expected *.txt or *.md files)")
	}
	return out, nil
}

// Parse reads line-per-criterion content. Lines starting with '#' are comments.
// A leading "label:" names the criterion and "1." or "1)" numbers it as
// <base>-1. Other lines get <base>-<line index>, moved to the next free index
// when a numbered line already claims it.
func Parse(data []byte, source string) ([]model.Criterion, error) {
	return parseFile(data, source, false)
}

// line is one criterion before unlabelled lines are given ids.
type line struct {
	id    string
	text  string
	index int
}

func parseFile(data []byte, source string, single bool) ([]model.Criterion, error) {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." {
		base = "criterion"
	}

	var lines []line
	claimed := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		l := labelOf(text, base)
		l.index = len(lines) + 1
		if l.id != "" {
			if claimed[l.id] {
				return nil, model.NewConfigError(source, "duplicate criterion id %q", l.id)
			}
			claimed[l.id] = true
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, &model.ConfigError{Source: source, Err: err}
	}
	if len(lines) == 0 {
		return nil, model.NewConfigError(source, "no criteria found")
	}

	if single && len(lines) == 1 && lines[0].id == "" {
		return []model.Criterion{{ID: base, Text: lines[0].text, Source: source}}, nil
	}

	out := make([]model.Criterion, 0, len(lines))
	for _, l := range lines {
		if l.id == "" {
			n := l.index
			for claimed[base+"-"+strconv.Itoa(n)] {
				n++
			}
			l.id = base + "-" + strconv.Itoa(n)
			claimed[l.id] = true
		}
		out = append(out, model.Criterion{ID: l.id, Text: l.text, Source: source})
	}
	return out, nil
}

// labelOf splits an explicit label off text. Unlabelled lines return an empty id.
func labelOf(text, base string) line {
	if m := numberLabel.FindStringSubmatch(text); m != nil {
		return line{id: base + "-" + m[1], text: strings.TrimSpace(m[2])}
	}
	if m := namedLabel.FindStringSubmatch(text); m != nil {
		return line{id: m[1], text: strings.TrimSpace(m[2])}
	}
	return line{text: text}
}

// IDs returns criterion ids in order.
func IDs(cs []model.Criterion) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
