package config

import "path/filepath"

const defaultDataDir = "/usr/local/var/studydesk/data"

// DefaultProviders are the chat endpoints served out of the box. Every one
// speaks the OpenAI chat completions API.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"deepseek": {BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat", APIKeyEnv: "DEEPSEEK_API_KEY"},
		"kimi":     {BaseURL: "https://api.moonshot.cn/v1", Model: "moonshot-v1-8k", APIKeyEnv: "KIMI_API_KEY"},
		"chatgpt":  {BaseURL: "https://api.openai.com/v1", Model: "gpt-3.5-turbo", APIKeyEnv: "OPENAI_API_KEY"},
		"doubao":   {BaseURL: "https://ark.cn-beijing.volces.com/api/v3", Model: "ep-xxx", APIKeyEnv: "DOUBAO_API_KEY"},
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 120
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "json"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.DataDir, "db", "studydesk.db")
	}
	if cfg.Upload.MaxFileBytes == 0 {
		cfg.Upload.MaxFileBytes = 10 << 20
	}
	if cfg.Upload.MaxFiles == 0 {
		cfg.Upload.MaxFiles = 10
	}
	if cfg.Auth.TokenTTLHours == 0 {
		cfg.Auth.TokenTTLHours = 7 * 24
	}
	// Providers named in the file keep their settings; missing fields and
	// missing providers come from DefaultProviders.
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	for name, def := range DefaultProviders() {
		p, ok := cfg.Providers[name]
		if !ok {
			cfg.Providers[name] = def
			continue
		}
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		if p.Model == "" {
			p.Model = def.Model
		}
		if p.APIKeyEnv == "" {
			p.APIKeyEnv = def.APIKeyEnv
		}
		cfg.Providers[name] = p
	}
}
