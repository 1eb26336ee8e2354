package stagetrust

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoleRef is a stable reference to a stage role created by this
// tooling. It carries the identifiers needed to validate or delete
// the role later.
type RoleRef struct {
	// ID is a unique identifier for this role record.
	ID string `json:"id"`

	// Stage is the deployment stage the role belongs to.
	Stage Stage `json:"stage"`

	// RoleLabel is the human-readable role name.
	RoleLabel string `json:"role_label"`

	// RoleARN is the created role's ARN.
	RoleARN string `json:"role_arn"`

	// OIDCProviderARN is the trusted OIDC provider.
	OIDCProviderARN string `json:"oidc_provider_arn"`

	// CreatedAt is when the role was created.
	CreatedAt time.Time `json:"created_at"`

	// Owned indicates the role was created by this tooling and can
	// be safely deleted.
	Owned bool `json:"owned"`

	// Version tracks schema version for migration purposes.
	Version int `json:"version"`
}

// String implements fmt.Stringer.
func (r RoleRef) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewRoleRef creates an owned RoleRef with standard fields populated.
func NewRoleRef(stage Stage, roleLabel, roleARN, oidcProviderARN string) RoleRef {
	return RoleRef{
		ID:              fmt.Sprintf("stage-role-%s-%s", stage, uuid.New().String()[:8]),
		Stage:           stage,
		RoleLabel:       roleLabel,
		RoleARN:         roleARN,
		OIDCProviderARN: oidcProviderARN,
		CreatedAt:       time.Now(),
		Owned:           true,
		Version:         StateStoreVersion,
	}
}

// ListFilter specifies criteria for listing role records.
type ListFilter struct {
	// Stage filters by deployment stage.
	Stage Stage

	// Limit is the maximum number of results to return.
	Limit int

	// Offset is the starting index for pagination.
	Offset int
}

// StateStore provides persistent storage for role references and
// ownership tracking. This enables safe deletion (only delete roles
// the tooling created) and idempotency.
type StateStore interface {
	// Save stores a role reference.
	Save(ctx context.Context, ref RoleRef) error

	// Get retrieves a role reference by ID.
	Get(ctx context.Context, id string) (*RoleRef, error)

	// List returns all stored role references matching the filter.
	List(ctx context.Context, filter ListFilter) ([]RoleRef, error)

	// Delete removes a role reference from the store.
	Delete(ctx context.Context, id string) error

	// Exists checks if a role reference exists.
	Exists(ctx context.Context, id string) (bool, error)
}

// StateStoreVersion is the current schema version for state storage.
const StateStoreVersion = 1

// StateData is the serializable state format.
type StateData struct {
	Version   int                `json:"version"`
	Roles     map[string]RoleRef `json:"roles"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// MemoryStateStore is an in-memory StateStore implementation for
// testing.
type MemoryStateStore struct {
	mu    sync.RWMutex
	state StateData
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		state: StateData{
			Version:   StateStoreVersion,
			Roles:     make(map[string]RoleRef),
			UpdatedAt: time.Now(),
		},
	}
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(ctx context.Context, ref RoleRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Roles[ref.ID] = ref
	s.state.UpdatedAt = time.Now()
	return nil
}

// Get implements StateStore.
func (s *MemoryStateStore) Get(ctx context.Context, id string) (*RoleRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.state.Roles[id]
	if !exists {
		return nil, ErrNotFound("stage role", id)
	}
	return &ref, nil
}

// List implements StateStore.
func (s *MemoryStateStore) List(ctx context.Context, filter ListFilter) ([]RoleRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterRoles(s.state.Roles, filter), nil
}

// Delete implements StateStore.
func (s *MemoryStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Roles[id]; !exists {
		// Idempotent: deleting non-existent is not an error
		return nil
	}

	delete(s.state.Roles, id)
	s.state.UpdatedAt = time.Now()
	return nil
}

// Exists implements StateStore.
func (s *MemoryStateStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.state.Roles[id]
	return exists, nil
}

// FileStateStore is a file-based StateStore implementation.
type FileStateStore struct {
	mu       sync.RWMutex
	filePath string
	state    StateData
}

// NewFileStateStore creates a new file-based state store. If the
// file exists, it loads the existing state.
func NewFileStateStore(filePath string) (*FileStateStore, error) {
	s := &FileStateStore{
		filePath: filePath,
		state: StateData{
			Version:   StateStoreVersion,
			Roles:     make(map[string]RoleRef),
			UpdatedAt: time.Now(),
		},
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	return s, nil
}

// load reads state from file.
func (s *FileStateStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var state StateData
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("invalid state file format: %w", err)
	}

	// Handle version migration
	if state.Version != StateStoreVersion {
		if err := migrateState(&state); err != nil {
			return fmt.Errorf("state migration failed: %w", err)
		}
	}

	if state.Roles == nil {
		state.Roles = make(map[string]RoleRef)
	}

	s.state = state
	return nil
}

// migrateState handles schema version upgrades.
func migrateState(state *StateData) error {
	// Currently only version 1, no migration needed
	state.Version = StateStoreVersion
	return nil
}

// save writes state to file atomically.
func (s *FileStateStore) save() error {
	s.state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename state file: %w", err)
	}

	return nil
}

// Save implements StateStore.
func (s *FileStateStore) Save(ctx context.Context, ref RoleRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Roles[ref.ID] = ref
	return s.save()
}

// Get implements StateStore.
func (s *FileStateStore) Get(ctx context.Context, id string) (*RoleRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.state.Roles[id]
	if !exists {
		return nil, ErrNotFound("stage role", id)
	}
	return &ref, nil
}

// List implements StateStore.
func (s *FileStateStore) List(ctx context.Context, filter ListFilter) ([]RoleRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterRoles(s.state.Roles, filter), nil
}

// Delete implements StateStore.
func (s *FileStateStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.state.Roles[id]; !exists {
		return nil // Idempotent
	}

	delete(s.state.Roles, id)
	return s.save()
}

// Exists implements StateStore.
func (s *FileStateStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.state.Roles[id]
	return exists, nil
}

func filterRoles(roles map[string]RoleRef, filter ListFilter) []RoleRef {
	var refs []RoleRef
	for _, ref := range roles {
		if filter.Stage != "" && ref.Stage != filter.Stage {
			continue
		}
		refs = append(refs, ref)
	}

	// Apply pagination
	if filter.Offset > 0 && filter.Offset < len(refs) {
		refs = refs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(refs) {
		refs = refs[:filter.Limit]
	}

	return refs
}

// DefaultStateStorePath returns the default path for the state store
// file.
func DefaultStateStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".stagetrust", "state.json")
}
