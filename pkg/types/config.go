package types

// Config represents the conductor configuration file format
// (conductor.json / conductor.jsonc / conductor.yaml).
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Logging level: trace|debug|info|warn|error
	LogLevel string `json:"logLevel,omitempty"`

	// Engine tuning
	Engine *EngineConfig `json:"engine,omitempty"`

	// HTTP server settings
	Server *ServerConfig `json:"server,omitempty"`

	// Fetch command settings
	Fetch *FetchConfig `json:"fetch,omitempty"`

	// Document watcher settings
	Watcher *WatcherConfig `json:"watcher,omitempty"`

	// Context carries default interpolation values merged beneath
	// every document's data-context.
	Context map[string]any `json:"context,omitempty"`

	// Aliases maps additional command names to command list strings,
	// registered at startup.
	Aliases map[string]AliasConfig `json:"aliases,omitempty"`
}

// EngineConfig tunes the dispatch engine. Nil fields keep defaults.
type EngineConfig struct {
	// DispatchRateLimit caps dispatches per rolling second (default 1000).
	DispatchRateLimit *int `json:"dispatchRateLimit,omitempty"`

	// ExpressionRateLimit caps expression evaluations per rolling
	// second (default 10000).
	ExpressionRateLimit *int `json:"expressionRateLimit,omitempty"`

	// ChainDepthLimit caps nested chain recursion (default 25).
	ChainDepthLimit *int `json:"chainDepthLimit,omitempty"`

	// CommandTimeoutMS bounds a single command callback (default 30000).
	CommandTimeoutMS *int64 `json:"commandTimeoutMs,omitempty"`

	// ExpressionCacheSize caps the parsed-expression LRU (default 100).
	ExpressionCacheSize *int `json:"expressionCacheSize,omitempty"`

	// MaxExpressionLength bounds expression source size (default 1000).
	MaxExpressionLength *int `json:"maxExpressionLength,omitempty"`

	// TestMode makes dispatch errors escape to the caller instead of
	// being absorbed after error-path chaining.
	TestMode bool `json:"testMode,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `json:"host,omitempty"`
	Port        int      `json:"port,omitempty"`
	CORSOrigins []string `json:"corsOrigins,omitempty"`
}

// FetchConfig holds settings for the --fetch command family.
type FetchConfig struct {
	TimeoutMS    int64    `json:"timeoutMs,omitempty"`
	MaxRetries   int      `json:"maxRetries,omitempty"`
	AllowedHosts []string `json:"allowedHosts,omitempty"`
}

// WatcherConfig holds document watcher configuration.
type WatcherConfig struct {
	Ignore     []string `json:"ignore,omitempty"`
	DebounceMS int64    `json:"debounceMs,omitempty"`
}

// AliasConfig declares a config-registered command alias.
type AliasConfig struct {
	// Commands is the command list string the alias expands to.
	Commands    string `json:"commands"`
	Description string `json:"description,omitempty"`
}
