package config

import "fmt"

// ReportConfig selects where batch reports are archived.
type ReportConfig struct {
	StorageType string `env:"OPSFLOW_REPORT_STORAGE" default:"none"` // none, fs, gcs
	FSDir       string `env:"OPSFLOW_REPORT_FS_DIR" default:"./opsflow-reports"`
	GCSBucket   string `env:"OPSFLOW_REPORT_GCS_BUCKET"`
	GCSPrefix   string `env:"OPSFLOW_REPORT_GCS_PREFIX" default:"reports/"`
}

// Validate validates the report configuration.
func (c *ReportConfig) Validate() error {
	switch c.StorageType {
	case "none":
	case "fs":
		if c.FSDir == "" {
			return fmt.Errorf("OPSFLOW_REPORT_FS_DIR is required when OPSFLOW_REPORT_STORAGE is 'fs'")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("OPSFLOW_REPORT_GCS_BUCKET is required when OPSFLOW_REPORT_STORAGE is 'gcs'")
		}
	default:
		return fmt.Errorf("unknown OPSFLOW_REPORT_STORAGE: %s", c.StorageType)
	}
	return nil
}
