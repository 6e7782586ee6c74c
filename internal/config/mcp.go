package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// mcpFile mirrors the on-disk ~/.toolorch/mcp.json layout.
type mcpFile struct {
	Servers []MCPServerConfig `json:"servers"`
}

// LoadMCPServers loads external tool server configuration from
// <configDir>/mcp.json. A missing file is not an error: it is created empty.
// This is the one on-disk artifact in an otherwise environment-driven
// configuration surface (spec §3: "Immutable after load").
func LoadMCPServers(configDir string) ([]MCPServerConfig, string, error) {
	path := filepath.Join(configDir, "mcp.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(configDir, 0755); mkErr == nil {
				_ = saveMCPServers(path, nil)
			}
			return nil, path, nil
		}
		return nil, path, err
	}

	var f mcpFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, path, err
	}
	return f.Servers, path, nil
}

func saveMCPServers(path string, servers []MCPServerConfig) error {
	data, err := json.MarshalIndent(mcpFile{Servers: servers}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
