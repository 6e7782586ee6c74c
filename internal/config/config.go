// Package config loads the server's single configuration record from
// environment variables, following the layered viper pattern of the gateway
// this server descends from.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// MCPServerConfig is one external tool server entry (mapstructure for the
// "mcpServers" config list).
type MCPServerConfig struct {
	Name      string            `mapstructure:"name"`
	Transport string            `mapstructure:"transport"` // "stdio" | "http"
	Command   string            `mapstructure:"command"`
	Args      []string          `mapstructure:"args"`
	Env       map[string]string `mapstructure:"env"`
	URL       string            `mapstructure:"url"`
	Headers   map[string]string `mapstructure:"headers"`
}

// Config is the single configuration record described in spec §6.
type Config struct {
	ProjectID    string `mapstructure:"projectId"`
	Location     string `mapstructure:"location"`
	Model        string `mapstructure:"model"`
	Temperature  float64 `mapstructure:"temperature"`
	MaxTokens    int    `mapstructure:"maxTokens"`
	TopP         float64 `mapstructure:"topP"`
	TopK         int    `mapstructure:"topK"`

	EnableConversations bool `mapstructure:"enableConversations"`
	SessionTimeout      int  `mapstructure:"sessionTimeout"` // seconds
	MaxHistory          int  `mapstructure:"maxHistory"`

	EnableReasoning   bool `mapstructure:"enableReasoning"`
	MaxReasoningSteps int  `mapstructure:"maxReasoningSteps"`

	LogDir         string `mapstructure:"logDir"`
	DisableLogging bool   `mapstructure:"disableLogging"`
	LogToStderr    bool   `mapstructure:"logToStderr"`
	LogLevel       string `mapstructure:"logLevel"`
	LogFormat      string `mapstructure:"logFormat"`

	MCPServers []MCPServerConfig `mapstructure:"mcpServers"`

	// Ambient surface beyond spec.md's table: which client-protocol fronts
	// to serve (§12 supplement — stdio is always on regardless of this list).
	HTTPAddr string `mapstructure:"httpAddr"`
	WSAddr   string `mapstructure:"wsAddr"`
}

// Load reads the configuration from environment variables (prefixed
// TOOLORCH_) with the documented defaults, plus the external tool server
// list from ~/.toolorch/mcp.json (created empty when missing).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOOLORCH")
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows; bind the ones without a
	// default so their environment variables are read too.
	for _, key := range []string{"projectId", "logDir", "disableLogging", "logToStderr", "httpAddr", "wsAddr"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	servers, path, err := LoadMCPServers(homeConfigDir())
	if err != nil {
		return nil, fmt.Errorf("load mcp servers (%s): %w", path, err)
	}
	cfg.MCPServers = servers

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectId is required")
	}

	return &cfg, nil
}

func homeConfigDir() string {
	home, _ := os.UserHomeDir()
	return home + "/.toolorch"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("location", "global")
	v.SetDefault("model", "gemini-1.5-flash-002")
	v.SetDefault("temperature", 1.0)
	v.SetDefault("maxTokens", 8192)
	v.SetDefault("topP", 0.95)
	v.SetDefault("topK", 40)

	v.SetDefault("enableConversations", false)
	v.SetDefault("sessionTimeout", 3600)
	v.SetDefault("maxHistory", 10)

	v.SetDefault("enableReasoning", false)
	v.SetDefault("maxReasoningSteps", 5)

	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "json")
}
