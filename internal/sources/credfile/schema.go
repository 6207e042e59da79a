package credfile

// Credentials represents the top-level structure of the OAuth application
// credentials YAML file (TRIMBOX_CREDENTIALS_FILE).
type Credentials struct {
	Google GoogleApp `yaml:"google"`
}

// GoogleApp contains the Google Cloud OAuth application properties.
// These identify the trimbox application, not any user: per-user grants
// live in the store.
type GoogleApp struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}
