package config

import (
	"fmt"
	"path/filepath"
)

var severityNames = map[string]bool{
	"all":                 true,
	"advice":              true,
	"potentially-serious": true,
	"error":               true,
	"meltdown":            true,
}

// Validate checks the config for values that would make doctor misbehave.
func (c *Config) Validate() error {
	if !severityNames[c.Doctor.MinSeverity] {
		return fmt.Errorf("doctor.min_severity: unknown severity %q", c.Doctor.MinSeverity)
	}
	for path, co := range c.Checkouts {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("checkouts: mount path %q is not absolute", path)
		}
		if co.BackingRepo == "" {
			return fmt.Errorf("checkouts[%s]: backing_repo is required", path)
		}
		for _, r := range co.Redirections {
			if filepath.IsAbs(r) {
				return fmt.Errorf("checkouts[%s]: redirection %q must be repo-relative", path, r)
			}
		}
	}
	return nil
}

// CheckoutStateDir returns the state directory for a configured checkout,
// deriving <state_dir>/clients/<basename> when none is set explicitly.
func (c *Config) CheckoutStateDir(mountPath string) string {
	if co, ok := c.Checkouts[mountPath]; ok && co.StateDir != "" {
		return co.StateDir
	}
	return filepath.Join(c.StateDir, "clients", filepath.Base(mountPath))
}
