package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Loader manages source configuration from sources.yaml
 * Provides in-memory lookup for fast access
 */

// Config represents the structure of sources.yaml
type Config struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig represents a single source in the YAML file
type SourceConfig struct {
	Source            string            `yaml:"source"`
	Secret            string            `yaml:"secret"`
	SignatureVerifier string            `yaml:"signature_verifier"`
	Enabled           *bool             `yaml:"enabled"` // Default: true
	AllowedEvents     []string          `yaml:"allowed_events"`
	Metadata          map[string]string `yaml:"metadata"`
}

// Loader holds the loaded sources
type Loader struct {
	sources map[string]*Source
}

// NewLoader creates a new source loader
func NewLoader() *Loader {
	return &Loader{
		sources: make(map[string]*Source),
	}
}

// Load reads and parses the sources.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading sources file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing sources YAML: %w", err)
	}

	for _, sc := range config.Sources {
		// Sources are enabled unless the file says otherwise
		enabled := true
		if sc.Enabled != nil {
			enabled = *sc.Enabled
		}

		source := &Source{
			Name:          sc.Source,
			Secret:        sc.Secret,
			Verifier:      sc.SignatureVerifier,
			Enabled:       enabled,
			AllowedEvents: sc.AllowedEvents,
			Metadata:      sc.Metadata,
		}

		if err := source.Validate(); err != nil {
			return fmt.Errorf("validating source: %w", err)
		}

		l.sources[source.Name] = source
	}

	return nil
}

// Get retrieves a source by its name
func (l *Loader) Get(name string) (*Source, error) {
	source, exists := l.sources[name]
	if !exists {
		return nil, fmt.Errorf("source not found: %s", name)
	}
	return source, nil
}

// List returns all loaded sources
func (l *Loader) List() []*Source {
	sources := make([]*Source, 0, len(l.sources))
	for _, source := range l.sources {
		sources = append(sources, source)
	}
	return sources
}

// Exists checks if a source name exists
func (l *Loader) Exists(name string) bool {
	_, exists := l.sources[name]
	return exists
}
