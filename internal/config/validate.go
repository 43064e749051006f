package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"naimeta/internal/stealth"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScan() error {
	if _, err := filepath.Match(c.Scan.Pattern, "probe.png"); err != nil {
		return fmt.Errorf("scan.pattern %q is not a valid glob: %w", c.Scan.Pattern, err)
	}
	if c.Scan.Workers <= 0 || c.Scan.Workers > maxScanWorkers {
		return fmt.Errorf("scan.workers must be between 1 and %d", maxScanWorkers)
	}
	if _, err := stealth.ParseOrder(c.Scan.PixelOrder); err != nil {
		return fmt.Errorf("scan.pixel_order: %w", err)
	}
	return nil
}

func (c *Config) validateExport() error {
	for key, name := range map[string]string{
		"export.csv_name": c.Export.CSVName,
		"export.tsv_name": c.Export.TSVName,
	} {
		if name != filepath.Base(name) || name == "." || name == ".." {
			return fmt.Errorf("%s must be a plain file name, got %q", key, name)
		}
	}
	if c.Export.CSVName == c.Export.TSVName {
		return errors.New("export.csv_name and export.tsv_name must differ")
	}
	if c.Export.CharSlots <= 0 || c.Export.CharSlots > maxCharSlots {
		return fmt.Errorf("export.char_slots must be between 1 and %d", maxCharSlots)
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q: %w", c.Server.Bind, err)
	}
	if c.Server.MaxUploadMiB <= 0 || c.Server.MaxUploadMiB > maxUploadMiBLimit {
		return fmt.Errorf("server.max_upload_mib must be between 1 and %d", maxUploadMiBLimit)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}
