package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/intentgov/internal/model"
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// ErrNotFound is returned when no pending file exists for a key.
var ErrNotFound = errors.New("approval not found")

// Status represents the state of a confirmation request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Approval is one confirmation request awaiting an operator decision.
// Key is the ToolCallRequest id, so a file is never shared between requests.
type Approval struct {
	Key        string     `json:"key"`
	Status     Status     `json:"status"`
	RunID      uint64     `json:"run_id"`
	Action     string     `json:"action"`
	Args       model.Args `json:"args"`
	Reason     string     `json:"reason"`
	Rule       string     `json:"rule,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Decision converts a resolved approval to a ConfirmationDecision.
func (a *Approval) Decision() model.ConfirmationDecision {
	d := model.ConfirmationDecision{
		Approved: a.Status == StatusApproved,
		Comment:  a.Comment,
	}
	if a.ResolvedAt != nil {
		d.DecidedAt = *a.ResolvedAt
	}
	return d
}

// Store manages pending confirmation files on disk.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default pending-confirmation directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "intentgov-pending")
	}
	return filepath.Join(home, ".intentgov", "pending")
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// Request creates a pending file for req. A key is never reused: requesting
// an existing key fails.
func (s *Store) Request(req model.ToolCallRequest, v model.Verdict) (*Approval, error) {
	if err := validateKey(req.ID); err != nil {
		return nil, fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(req.ID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("approval %q already exists", req.ID)
	}

	a := Approval{
		Key:       req.ID,
		Status:    StatusPending,
		RunID:     req.RunID,
		Action:    req.Action,
		Args:      req.Args,
		Reason:    v.Reason,
		Rule:      v.Rule,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.writeAtomic(path, a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Approve records an approving decision.
func (s *Store) Approve(key, comment string) error {
	return s.resolve(key, StatusApproved, comment)
}

// Reject records a rejecting decision.
func (s *Store) Reject(key, comment string) error {
	return s.resolve(key, StatusRejected, comment)
}

// resolve is terminal: a decided approval cannot be revised.
func (s *Store) resolve(key string, status Status, comment string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return fmt.Errorf("approval %q: %w", key, err)
	}
	if a.Status != StatusPending {
		return fmt.Errorf("approval %q already %s", key, a.Status)
	}

	a.Status = status
	a.Comment = comment
	now := time.Now().UTC()
	a.ResolvedAt = &now

	return s.writeAtomic(s.path(key), *a)
}

// Get returns the current state of an approval.
func (s *Store) Get(key string) (*Approval, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.read(key)
	if err != nil {
		return nil, fmt.Errorf("approval %q: %w", key, err)
	}
	return a, nil
}

// Consume removes a resolved approval once its decision has been used.
func (s *Store) Consume(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns all approvals in the store, oldest first.
func (s *Store) List() ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !isApprovalFile(e.Name()) {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		a, err := s.read(key)
		if err != nil {
			continue
		}
		approvals = append(approvals, *a)
	}

	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
	})
	return approvals, nil
}

// Cleanup removes all approval files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}

	return &a, nil
}

func (s *Store) writeAtomic(path string, a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// isApprovalFile reports whether name is a complete approval file (not a .tmp partial write).
func isApprovalFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp")
}
