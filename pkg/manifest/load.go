package manifest

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Load reads and validates a manifest file. Dir is set to the file's
// directory so relative file entries resolve next to it.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
