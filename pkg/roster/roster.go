// Package roster loads the competition roster: which editions run and
// which trader accounts compete in each.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Trader is one competitor account entry in YAML.
type Trader struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
	Strategy string `yaml:"strategy"`
}

// Edition declares one competition instance and its field of traders.
type Edition struct {
	Name    string   `yaml:"name"`
	Traders []Trader `yaml:"traders"`
}

// File represents the top-level YAML structure.
type File struct {
	Editions []Edition `yaml:"editions"`
}

// Load reads the roster from a YAML file and validates it.
func Load(path string) ([]Edition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Editions) == 0 {
		return nil, fmt.Errorf("roster %s declares no editions", path)
	}

	seenEdition := make(map[string]bool)
	for _, ed := range file.Editions {
		if ed.Name == "" {
			return nil, fmt.Errorf("roster %s: edition with empty name", path)
		}
		if seenEdition[ed.Name] {
			return nil, fmt.Errorf("roster %s: duplicate edition %q", path, ed.Name)
		}
		seenEdition[ed.Name] = true

		seenTrader := make(map[string]bool)
		for _, tr := range ed.Traders {
			if tr.ID == "" {
				return nil, fmt.Errorf("roster %s: edition %q has a trader with empty id", path, ed.Name)
			}
			if seenTrader[tr.ID] {
				return nil, fmt.Errorf("roster %s: edition %q duplicates trader %q", path, ed.Name, tr.ID)
			}
			seenTrader[tr.ID] = true
		}
	}
	return file.Editions, nil
}
