package storage

import (
	"fmt"

	"pdfdesk/config"
)

// New builds the backend selected by cfg.Driver.
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath)
	case "s3", "wasabi", "r2":
		endpoint, region, err := resolveEndpoint(cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Storage(S3Options{
			Provider:   cfg.Driver,
			Bucket:     cfg.S3Bucket,
			Region:     region,
			Endpoint:   endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			PresignTTL: cfg.PresignTTL,
		})
	}
	return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
}

// resolveEndpoint fills in the well-known endpoints of S3-compatible
// providers when none is configured.
func resolveEndpoint(cfg config.StorageConfig) (string, string, error) {
	if cfg.S3Endpoint != "" {
		return cfg.S3Endpoint, cfg.S3Region, nil
	}

	switch cfg.Driver {
	case "wasabi":
		if cfg.S3Region == "" || cfg.S3Region == "us-east-1" {
			return "https://s3.wasabisys.com", "us-east-1", nil
		}
		return fmt.Sprintf("https://s3.%s.wasabisys.com", cfg.S3Region), cfg.S3Region, nil
	case "r2":
		if cfg.R2AccountID == "" {
			return "", "", fmt.Errorf("STORAGE_R2_ACCOUNT_ID or STORAGE_S3_ENDPOINT is required for r2")
		}
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID), "auto", nil
	}
	return "", cfg.S3Region, nil
}
