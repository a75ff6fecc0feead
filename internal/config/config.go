package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/conductor-html/conductor/pkg/types"
)

// configNames are the file names probed in each config directory, in
// load order.
var configNames = []string{
	"conductor.json",
	"conductor.jsonc",
	"conductor.yaml",
	"conductor.yml",
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.conductor/)
// 2. Global config (~/.config/conductor/ - XDG compatible)
// 3. Project config (conductor.json[c]/.yaml or .conductor/ subdir)
// 4. CONDUCTOR_CONFIG file
// 5. CONDUCTOR_CONFIG_CONTENT inline JSON
// 6. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	loadDir := func(dir string) {
		for _, name := range configNames {
			loadOnce(filepath.Join(dir, name), dir)
		}
	}

	// 1. Home-dot global config (~/.conductor/)
	home := os.Getenv("HOME")
	if home != "" {
		loadDir(filepath.Join(home, ".conductor"))
	}

	// 2. XDG-compatible global config (~/.config/conductor/)
	loadDir(GetPaths().Config)

	// 3. Project config
	if directory != "" {
		loadDir(directory)
		loadDir(filepath.Join(directory, ".conductor"))
	}

	// 4. CONDUCTOR_CONFIG file override
	if configPath := os.Getenv("CONDUCTOR_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 5. CONDUCTOR_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("CONDUCTOR_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 6. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return err
		}
	default:
		// Strip JSONC comments using tidwall/jsonc
		data = jsonc.ToJSON(data)
	}

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// yamlToJSON re-encodes YAML as JSON so both formats share one decode
// path and one set of field names.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing yaml config: %w", err)
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encoding yaml config: %w", err)
	}
	return out, nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	// Merge engine settings field-wise so later files can override a
	// single knob.
	if source.Engine != nil {
		if target.Engine == nil {
			target.Engine = &types.EngineConfig{}
		}
		if source.Engine.DispatchRateLimit != nil {
			target.Engine.DispatchRateLimit = source.Engine.DispatchRateLimit
		}
		if source.Engine.ExpressionRateLimit != nil {
			target.Engine.ExpressionRateLimit = source.Engine.ExpressionRateLimit
		}
		if source.Engine.ChainDepthLimit != nil {
			target.Engine.ChainDepthLimit = source.Engine.ChainDepthLimit
		}
		if source.Engine.CommandTimeoutMS != nil {
			target.Engine.CommandTimeoutMS = source.Engine.CommandTimeoutMS
		}
		if source.Engine.ExpressionCacheSize != nil {
			target.Engine.ExpressionCacheSize = source.Engine.ExpressionCacheSize
		}
		if source.Engine.MaxExpressionLength != nil {
			target.Engine.MaxExpressionLength = source.Engine.MaxExpressionLength
		}
		if source.Engine.TestMode {
			target.Engine.TestMode = true
		}
	}

	if source.Server != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		if source.Server.Host != "" {
			target.Server.Host = source.Server.Host
		}
		if source.Server.Port != 0 {
			target.Server.Port = source.Server.Port
		}
		if len(source.Server.CORSOrigins) > 0 {
			target.Server.CORSOrigins = source.Server.CORSOrigins
		}
	}

	if source.Fetch != nil {
		if target.Fetch == nil {
			target.Fetch = &types.FetchConfig{}
		}
		if source.Fetch.TimeoutMS != 0 {
			target.Fetch.TimeoutMS = source.Fetch.TimeoutMS
		}
		if source.Fetch.MaxRetries != 0 {
			target.Fetch.MaxRetries = source.Fetch.MaxRetries
		}
		if len(source.Fetch.AllowedHosts) > 0 {
			target.Fetch.AllowedHosts = source.Fetch.AllowedHosts
		}
	}

	if source.Watcher != nil {
		if target.Watcher == nil {
			target.Watcher = &types.WatcherConfig{}
		}
		if len(source.Watcher.Ignore) > 0 {
			target.Watcher.Ignore = append(target.Watcher.Ignore, source.Watcher.Ignore...)
		}
		if source.Watcher.DebounceMS != 0 {
			target.Watcher.DebounceMS = source.Watcher.DebounceMS
		}
	}

	// Merge context values
	if source.Context != nil {
		if target.Context == nil {
			target.Context = make(map[string]any)
		}
		for k, v := range source.Context {
			target.Context[k] = v
		}
	}

	// Merge aliases
	if source.Aliases != nil {
		if target.Aliases == nil {
			target.Aliases = make(map[string]types.AliasConfig)
		}
		for k, v := range source.Aliases {
			target.Aliases[k] = v
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if level := os.Getenv("CONDUCTOR_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if port := os.Getenv("CONDUCTOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			if config.Server == nil {
				config.Server = &types.ServerConfig{}
			}
			config.Server.Port = p
		}
	}

	if host := os.Getenv("CONDUCTOR_HOST"); host != "" {
		if config.Server == nil {
			config.Server = &types.ServerConfig{}
		}
		config.Server.Host = host
	}

	if v := os.Getenv("CONDUCTOR_TEST_MODE"); v != "" {
		if testMode, err := strconv.ParseBool(v); err == nil {
			if config.Engine == nil {
				config.Engine = &types.EngineConfig{}
			}
			config.Engine.TestMode = testMode
		}
	}

	if v := os.Getenv("CONDUCTOR_DISPATCH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if config.Engine == nil {
				config.Engine = &types.EngineConfig{}
			}
			config.Engine.DispatchRateLimit = &n
		}
	}

	if v := os.Getenv("CONDUCTOR_COMMAND_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			if config.Engine == nil {
				config.Engine = &types.EngineConfig{}
			}
			config.Engine.CommandTimeoutMS = &ms
		}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigDir returns the config directory to use.
// Prefers CONDUCTOR_CONFIG_DIR, then ~/.conductor, then
// ~/.config/conductor.
func GetConfigDir() string {
	// Check environment variable first
	if dir := os.Getenv("CONDUCTOR_CONFIG_DIR"); dir != "" {
		return dir
	}

	// Check for home-dot location
	home := os.Getenv("HOME")
	if home != "" {
		dotDir := filepath.Join(home, ".conductor")
		if _, err := os.Stat(dotDir); err == nil {
			return dotDir
		}
	}

	// Fall back to XDG location
	return GetPaths().Config
}
