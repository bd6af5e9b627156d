package config

import "time"

// Config represents the complete smoked-tofu configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	GitHub  GitHubConfig  `yaml:"github"`
	Webhook WebhookConfig `yaml:"webhook"`
	Command CommandConfig `yaml:"command"`
	History HistoryConfig `yaml:"history,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	PIDFile  string `yaml:"pid_file,omitempty"`
}

// GitHubConfig defines how check runs are reported.
type GitHubConfig struct {
	Token     string `yaml:"token"`
	APIURL    string `yaml:"api_url"`
	CheckName string `yaml:"check_name"`
}

// WebhookConfig defines the push webhook listener.
type WebhookConfig struct {
	Listen          string `yaml:"listen"`
	Path            string `yaml:"path"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
}

// CommandConfig is the single command run for every commit.
// Name and Args are fixed for the process lifetime.
type CommandConfig struct {
	Name           string        `yaml:"name"`
	Args           []string      `yaml:"args,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	MaxOutputBytes int           `yaml:"max_output_bytes,omitempty"`
}

// HistoryConfig defines the delivery audit log. An empty path disables it.
// Deliveries older than Retention are pruned at startup; zero keeps everything.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention,omitempty"`
}

// APIConfig defines the optional ops HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "smoked-tofu",
			LogLevel: "info",
		},
		GitHub: GitHubConfig{
			APIURL:    "https://api.github.com",
			CheckName: "smoked-tofu",
		},
		Webhook: WebhookConfig{
			Listen:          "0.0.0.0:3000",
			Path:            "/webhook",
			SignatureHeader: "X-Hub-Signature-256",
			MaxBodySize:     "1MB",
		},
		Command: CommandConfig{
			MaxOutputBytes: 32 * 1024,
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
