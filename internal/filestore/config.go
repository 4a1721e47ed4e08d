package filestore

import "github.com/koustreak/rowgate/internal/errs"

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to an object storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// Bucket holds rowgate's objects. It is created on first use.
	Bucket string
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
		Bucket:    "rowgate",
	}
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	switch {
	case c.Endpoint == "":
		return errs.New(errs.ErrKindInvalidValue, "object store endpoint is required")
	case c.Bucket == "":
		return errs.New(errs.ErrKindInvalidValue, "object store bucket is required")
	case c.Provider != "" && c.Provider != ProviderMinIO:
		return errs.Newf(errs.ErrKindInvalidValue, "unsupported object store provider %q", c.Provider)
	}
	return nil
}
