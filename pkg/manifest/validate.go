package manifest

import "fmt"

// validateEntries runs the per-entry checks and rejects duplicate paths.
func (c *Config) validateEntries() error {
	seen := make(map[string]int, len(c.Entries))
	for i := range c.Entries {
		if err := c.Entries[i].normalize(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if err := c.Entries[i].validate(); err != nil {
			return fmt.Errorf("entry %d (%s %s): %w", i, c.Entries[i].Type, c.Entries[i].Path, err)
		}
		if j, dup := seen[c.Entries[i].Path]; dup {
			return fmt.Errorf("entry %d: path %q already declared by entry %d", i, c.Entries[i].Path, j)
		}
		seen[c.Entries[i].Path] = i
	}
	return nil
}
