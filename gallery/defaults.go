package gallery

import "time"

// Application wide defaults shared by config and the CLI.
const (
	DefaultAppName = "twinkle-gallery"

	DefaultDataPath   = "data.jsonl"
	DefaultModel      = "gpt-4o-mini"
	DefaultProvider   = "openai"
	DefaultListenAddr = "127.0.0.1:8501"
	DefaultLogLevel   = "info"
	DefaultTimezone   = "Asia/Taipei"

	DefaultLogoLight = "static/logo_light.png"
	DefaultLogoDark  = "static/logo_dark.png"

	// DefaultBackgroundProb is the chance an answer may add background context.
	DefaultBackgroundProb = 1.0

	// DefaultSessionIdleTTL expires browser sessions nobody has used.
	DefaultSessionIdleTTL = 12 * time.Hour

	DefaultSecretsName = "secrets"
	DefaultSecretsType = "toml"
	DefaultSecretsDir  = ".streamlit"
)
