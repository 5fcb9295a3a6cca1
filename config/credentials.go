package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const baseCredPath = "newsdesk/creds.toml"

// Credentials holds all application credentials
type Credentials struct {
	FeedAPI FeedAPICredentials `toml:"feed_api"`
}

// FeedAPICredentials holds the key of the JSON feed API (primary transport)
type FeedAPICredentials struct {
	APIKey string `toml:"api_key"`
}

// IsValid checks if the feed API key is set
func (c FeedAPICredentials) IsValid() bool {
	return c.APIKey != ""
}

// ReadCredentials reads credentials from the specified path
func ReadCredentials(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		return creds, err
	}

	if _, err := toml.Decode(string(data), &creds); err != nil {
		return creds, fmt.Errorf("failed to decode credentials at %s: %w", path, err)
	}

	return creds, nil
}

// WriteCredentials writes credentials to the specified path
func WriteCredentials(path string, creds Credentials) error {
	blob, err := toml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	basePath := filepath.Dir(path)
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return fmt.Errorf("failed to create credentials directory at '%s': %w", basePath, err)
	}

	// Only owner can read/write
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file at '%s': %w", path, err)
	}

	return nil
}

// DefaultCredentialsPath returns the default path for credentials file
func DefaultCredentialsPath() string {
	return filepath.Join(xdg.ConfigHome, baseCredPath)
}
