package nextcloud

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ncjourney/internal/browser"
)

// LocatorFile is the on-disk override format. Entries replace built-in
// locators by key; unnamed keys keep their defaults. Overriding a parent
// such as files.row also rescopes share.status and files.row_actions.
type LocatorFile struct {
	Version  string                     `json:"version" yaml:"version"`
	Locators map[string]browser.Locator `json:"locators" yaml:"locators"`
}

// LoadLocatorsFromPath reads an override file (YAML or JSON) and applies it
// on top of the built-in table.
func LoadLocatorsFromPath(path string) (*Locators, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locators: %w", err)
	}
	return LoadLocators(data, filepath.Ext(path))
}

// LoadLocators parses overrides from bytes. ext is the file extension
// (".json", ".yaml") for a format hint; empty = detect from content.
func LoadLocators(data []byte, ext string) (*Locators, error) {
	f, err := parseLocatorFile(data, ext)
	if err != nil {
		return nil, err
	}
	locs := DefaultLocators()
	if f.Version != "" {
		locs.Version = f.Version
	}
	changed := make(map[string]bool, len(f.Locators))
	for key, loc := range f.Locators {
		if err := locs.Set(key, loc); err != nil {
			return nil, err
		}
		changed[key] = true
	}
	locs.rescope(changed)
	if err := locs.Validate(); err != nil {
		return nil, fmt.Errorf("locators: %w", err)
	}
	return locs, nil
}

func parseLocatorFile(data []byte, ext string) (*LocatorFile, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		// Detect: JSON starts with {, anything else is YAML
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}
	var f LocatorFile
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse locators json: %w", err)
		}
	case ".yaml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse locators yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("locators: unsupported extension %q", ext)
	}
	return &f, nil
}

// MarshalYAML renders the whole table in override-file form.
func (l *Locators) MarshalYAML() (any, error) {
	f := LocatorFile{Version: l.Version, Locators: make(map[string]browser.Locator)}
	for _, k := range l.Keys() {
		f.Locators[k], _ = l.Get(k)
	}
	return f, nil
}
