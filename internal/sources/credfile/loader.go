package credfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the OAuth credentials YAML file.
type Loader struct {
	filePath string
}

// NewLoader creates a new credentials loader.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads, parses and validates the credentials file.
func (l *Loader) Load() (Credentials, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse credentials yaml: %w", err)
	}

	if err := validate(creds); err != nil {
		return Credentials{}, err
	}

	return creds, nil
}

func validate(creds Credentials) error {
	if creds.Google.ClientID == "" {
		return fmt.Errorf("credentials file: google.client_id is required")
	}
	if creds.Google.ClientSecret == "" {
		return fmt.Errorf("credentials file: google.client_secret is required")
	}
	return nil
}
