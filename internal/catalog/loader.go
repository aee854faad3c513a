// Package catalog loads badge definitions from YAML files and seeds them
// into the datastore.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

// BadgeStore persists badge definitions
type BadgeStore interface {
	UpsertBadge(ctx context.Context, badge *models.Badge) error
}

// Loader manages loading and caching of badge definitions
type Loader struct {
	mu     sync.RWMutex
	badges map[string]*models.Badge
}

// NewLoader creates a new badge loader
func NewLoader() *Loader {
	return &Loader{
		badges: make(map[string]*models.Badge),
	}
}

// LoadFromDir loads every *.yaml and *.yml file in dir. Invalid files are
// logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading badges from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to open badge directory: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("failed to list badge files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		n, err := l.LoadFromFile(file)
		if err != nil {
			slog.Warn("failed to load badge file", "file", file, "error", err)
			continue
		}
		loaded += n
	}

	slog.Info("badges loaded", "count", loaded, "files", len(files))
	return nil
}

// LoadFromFile loads the badges of a single YAML file and returns how many
// were added. A file with any invalid badge is rejected as a whole.
func (l *Loader) LoadFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	var bf badgeFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return 0, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(bf.Badges))
	for i := range bf.Badges {
		b := &bf.Badges[i]
		if err := validate(b); err != nil {
			return 0, fmt.Errorf("badge %d: %w", i, err)
		}
		if seen[b.ID] {
			return 0, fmt.Errorf("duplicate badge id %q", b.ID)
		}
		seen[b.ID] = true
	}

	l.mu.Lock()
	for i := range bf.Badges {
		b := bf.Badges[i]
		l.badges[b.ID] = &b
	}
	l.mu.Unlock()

	return len(bf.Badges), nil
}

// Get retrieves a badge by id
func (l *Loader) Get(id string) *models.Badge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.badges[id]
}

// List returns all loaded badges ordered by id
func (l *Loader) List() []*models.Badge {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Badge, 0, len(l.badges))
	for _, b := range l.badges {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Seed upserts every loaded badge into store
func (l *Loader) Seed(ctx context.Context, store BadgeStore) error {
	badges := l.List()
	for _, b := range badges {
		badge := *b
		if err := store.UpsertBadge(ctx, &badge); err != nil {
			return fmt.Errorf("failed to seed badge %s: %w", b.ID, err)
		}
	}

	slog.Info("badge catalog seeded", "count", len(badges))
	return nil
}

func validate(b *models.Badge) error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.Name == "" {
		return fmt.Errorf("name is required for %q", b.ID)
	}
	if !b.CriteriaType.Valid() {
		return fmt.Errorf("unknown criteria_type %q for %q", b.CriteriaType, b.ID)
	}
	if b.CriteriaValue < 0 {
		return fmt.Errorf("criteria_value must not be negative for %q", b.ID)
	}
	return nil
}

// badgeFile represents the YAML structure of a badge catalog file
type badgeFile struct {
	Badges []models.Badge `yaml:"badges"`
}
