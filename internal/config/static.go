package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Static configuration files shipped under the data directory. These map
// cities to vendor-specific addressing that cannot be derived from slugs.

// GranicusViewIDs maps "https://{slug}.granicus.com" base URLs to the
// integer view id of the city's meeting calendar.
type GranicusViewIDs map[string]int

// OnBaseSites maps a city banana to the ordered list of host+path site
// strings to probe.
type OnBaseSites map[string][]string

// CivicEngageOverrides maps a city slug to a calendar category id when
// the default category is wrong for that deployment.
type CivicEngageOverrides map[string]int

func loadJSON(dataDir, name string, out any) error {
	path := filepath.Join(dataDir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LoadGranicusViewIDs reads granicus_view_ids.json. Missing file is a
// configuration error: Granicus cities cannot sync without it.
func LoadGranicusViewIDs(dataDir string) (GranicusViewIDs, error) {
	ids := GranicusViewIDs{}
	if err := loadJSON(dataDir, "granicus_view_ids.json", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// LoadOnBaseSites reads onbase_sites.json.
func LoadOnBaseSites(dataDir string) (OnBaseSites, error) {
	sites := OnBaseSites{}
	if err := loadJSON(dataDir, "onbase_sites.json", &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

// LoadCivicEngageOverrides reads civicengage_sites.json. The file is
// optional; absence yields an empty map.
func LoadCivicEngageOverrides(dataDir string) (CivicEngageOverrides, error) {
	overrides := CivicEngageOverrides{}
	err := loadJSON(dataDir, "civicengage_sites.json", &overrides)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CivicEngageOverrides{}, nil
		}
		return nil, err
	}
	return overrides, nil
}
