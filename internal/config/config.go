// Package config resolves runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/astraportal/astraportal/pkg/live"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultModel = "models/gemini-2.0-flash-live-001"
	DefaultVoice = "Aoede"
)

// Config holds everything the session needs before dialing.
type Config struct {
	// APIKey authenticates against the Gemini Live endpoint. Required.
	APIKey string
	// Model is the fully-qualified live model resource name.
	Model string
	// Voice selects the prebuilt synthesized voice.
	Voice string
	// Portal names the guide persona woven into the system instruction.
	Portal string
	// Endpoint overrides the default websocket URL (tests, proxies).
	Endpoint string
}

// Load reads configuration from the process environment. A .env file in
// the working directory is merged in first without overriding variables
// already exported.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		APIKey:   strings.TrimSpace(getenv("GEMINI_API_KEY")),
		Model:    strings.TrimSpace(getenv("ASTRAPORTAL_MODEL")),
		Voice:    strings.TrimSpace(getenv("ASTRAPORTAL_VOICE")),
		Portal:   strings.TrimSpace(getenv("ASTRAPORTAL_PORTAL")),
		Endpoint: strings.TrimSpace(getenv("ASTRAPORTAL_ENDPOINT")),
	}
	if cfg.APIKey == "" {
		return Config{}, live.NewConfigError("GEMINI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return cfg, nil
}

// SystemInstruction renders the guide persona. The portal name, when set,
// gives the guide a specific doorway to speak from.
func SystemInstruction(portal string) string {
	var b strings.Builder
	b.WriteString("You are an astrology guide holding a live voice conversation. ")
	b.WriteString("Speak warmly and concisely, one thought at a time. ")
	b.WriteString("Begin by asking for the user's name, then their sun sign and rashi. ")
	b.WriteString("Call start_analysis before you read their chart, and call ")
	b.WriteString("set_user_profile once all three details are confirmed. ")
	b.WriteString("Never mention tools or function calls aloud.")
	if portal = strings.TrimSpace(portal); portal != "" {
		fmt.Fprintf(&b, " You speak through the %s portal; let its imagery color your readings.", portal)
	}
	return b.String()
}
