package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScan()
	c.normalizeExport()
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CachePath) == "" {
		c.Paths.CachePath = defaultCachePath()
	}
	if c.Paths.CachePath, err = expandPath(strings.TrimSpace(c.Paths.CachePath)); err != nil {
		return fmt.Errorf("paths.cache_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeScan() {
	c.Scan.Pattern = strings.TrimSpace(c.Scan.Pattern)
	if c.Scan.Pattern == "" {
		c.Scan.Pattern = defaultScanPattern
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = defaultScanWorkers
	}
	c.Scan.PixelOrder = strings.ToLower(strings.TrimSpace(c.Scan.PixelOrder))
	if c.Scan.PixelOrder == "" {
		c.Scan.PixelOrder = defaultPixelOrder
	}
}

func (c *Config) normalizeExport() {
	c.Export.CSVName = strings.TrimSpace(c.Export.CSVName)
	if c.Export.CSVName == "" {
		c.Export.CSVName = defaultCSVName
	}
	c.Export.TSVName = strings.TrimSpace(c.Export.TSVName)
	if c.Export.TSVName == "" {
		c.Export.TSVName = defaultTSVName
	}
	if c.Export.CharSlots == 0 {
		c.Export.CharSlots = defaultCharSlots
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if value, ok := os.LookupEnv(envServerBind); ok && strings.TrimSpace(value) != "" {
		c.Server.Bind = strings.TrimSpace(value)
	}
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.MaxUploadMiB == 0 {
		c.Server.MaxUploadMiB = defaultMaxUploadMiB
	}
	c.Server.AllowOrigin = strings.TrimSpace(c.Server.AllowOrigin)
	if c.Server.AllowOrigin == "" {
		c.Server.AllowOrigin = defaultAllowOrigin
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if value, ok := os.LookupEnv(envAPIToken); ok && strings.TrimSpace(value) != "" {
		c.Server.APIToken = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if value, ok := os.LookupEnv(envLogLevel); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(value))
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
