package themes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"posterd/internal/domain"
)

const (
	// DefaultBackground is applied when a theme file omits its background color.
	DefaultBackground = "#FFFFFF"
	// DefaultText is applied when a theme file omits its text color.
	DefaultText = "#000000"
)

// themeFile is the on-disk shape of a single theme definition. The
// renderer owns these files; the catalog only reads them.
type themeFile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Background  string `json:"bg"`
	Text        string `json:"text"`
}

// Catalog serves the poster themes found in a directory of JSON files,
// one file per theme, keyed by the file's base name. A broken theme
// file is skipped with a warning so one bad definition never takes the
// whole catalog down.
type Catalog struct {
	dir    string
	logger zerolog.Logger

	mu     sync.RWMutex
	themes map[string]domain.Theme
	order  []string
}

func NewCatalog(dir string, logger zerolog.Logger) *Catalog {
	return &Catalog{
		dir:    dir,
		logger: logger,
		themes: map[string]domain.Theme{},
	}
}

// Load scans the theme directory and replaces the in-memory catalog
// with what it finds. It fails only when the directory itself cannot
// be read.
func (c *Catalog) Load() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read themes dir: %w", err)
	}

	themes := map[string]domain.Theme{}
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		theme, err := c.readTheme(id, filepath.Join(c.dir, entry.Name()))
		if err != nil {
			c.logger.Warn().Err(err).Str("theme", id).Msg("themes: skipping unreadable theme")
			continue
		}
		themes[id] = theme
		order = append(order, id)
	}
	sort.Strings(order)

	c.mu.Lock()
	c.themes = themes
	c.order = order
	c.mu.Unlock()
	c.logger.Info().Int("count", len(order)).Str("dir", c.dir).Msg("themes: catalog loaded")
	return nil
}

func (c *Catalog) readTheme(id, path string) (domain.Theme, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Theme{}, err
	}
	var file themeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return domain.Theme{}, fmt.Errorf("parse theme: %w", err)
	}
	if file.Name == "" {
		file.Name = id
	}
	if file.Background == "" {
		file.Background = DefaultBackground
	}
	if file.Text == "" {
		file.Text = DefaultText
	}
	return domain.Theme{
		ID:          id,
		Name:        file.Name,
		Description: file.Description,
		Background:  file.Background,
		Text:        file.Text,
	}, nil
}

// List returns every theme ordered by identifier.
func (c *Catalog) List() []domain.Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Theme, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.themes[id])
	}
	return out
}

// Get looks up a single theme by identifier.
func (c *Catalog) Get(id string) (domain.Theme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	theme, ok := c.themes[id]
	return theme, ok
}

// Len reports how many themes are loaded.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
