// Package config provides configuration loading, merging, and path management for conductor.
//
// This package handles the configuration system that supports multiple sources
// and formats, with a hierarchical loading strategy that ensures proper precedence.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.conductor/)
//  2. Global config (~/.config/conductor/ - XDG compatible)
//  3. Project config (conductor.json/conductor.jsonc/conductor.yaml in the
//     working directory and its .conductor/ subdirectory)
//  4. CONDUCTOR_CONFIG file
//  5. CONDUCTOR_CONFIG_CONTENT inline JSON
//  6. Environment variables
//
// Configuration files are loaded in a specific order to ensure that more specific
// configurations override more general ones, while environment variables have the
// highest precedence.
//
// # Supported Formats
//
// The package supports JSON, JSONC and YAML formats:
//   - conductor.json - Standard JSON configuration
//   - conductor.jsonc - JSON with comments, processed using tidwall/jsonc
//   - conductor.yaml / conductor.yml - YAML, re-encoded to JSON before decoding
//
// # Variable Interpolation
//
// Configuration files support two types of variable interpolation:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (properly escaped for JSON)
//
// File paths in {file:path} placeholders support:
//   - Absolute paths
//   - Relative paths (resolved relative to config file directory)
//   - Home directory expansion (~/)
//
// Example configuration with interpolation:
//
//	{
//	  "server": {
//	    "host": "{env:CONDUCTOR_BIND_ADDR}"
//	  },
//	  "context": {
//	    "footer": "{file:~/footer-snippet.txt}"
//	  }
//	}
//
// # Configuration Merging
//
// When multiple configuration sources are found, they are merged using a
// strategy that:
//   - Overwrites scalar values (strings, booleans, numbers)
//   - Merges maps/objects by combining keys
//   - Overrides engine knobs field-wise so one file can adjust a single limit
//   - Preserves the last-loaded value for conflicts
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path management
// through the Paths type:
//   - Data: ~/.local/share/conductor (XDG_DATA_HOME)
//   - Config: ~/.config/conductor (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/conductor (XDG_CACHE_HOME)
//   - State: ~/.local/state/conductor (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
// Several environment variables provide direct configuration overrides:
//   - CONDUCTOR_LOG_LEVEL - Override the logging level
//   - CONDUCTOR_HOST / CONDUCTOR_PORT - Override server bind address
//   - CONDUCTOR_TEST_MODE - Make dispatch errors escape to callers
//   - CONDUCTOR_DISPATCH_RATE_LIMIT - Override the dispatch rate cap
//   - CONDUCTOR_COMMAND_TIMEOUT_MS - Override the command timeout
//   - CONDUCTOR_CONFIG - Path to a specific config file
//   - CONDUCTOR_CONFIG_CONTENT - Inline JSON configuration
//   - CONDUCTOR_CONFIG_DIR - Override the config directory location
//
// # Usage Example
//
//	// Load configuration from the current directory
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get standard paths
//	paths := config.GetPaths()
//	err = paths.EnsurePaths() // Create directories if they don't exist
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save configuration
//	err = config.Save(cfg, config.GlobalConfigPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
