// Package config holds the per-connection settings of the storage adapters.
package config

// StorageConfig holds configuration for a single storage connection (adapter.storage.<name>).
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket used when an operation passes an empty bucket.
	CredentialsFile string `yaml:"credentials_file"` // Service account key file (gcs). Empty uses application default credentials.
	Endpoint        string `yaml:"endpoint"`         // Overrides the service endpoint (gcs emulators).
	BaseDir         string `yaml:"base_dir"`         // Root directory of the local adapter.
}
