package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Recognized configuration keys. These form the external contract with the
// rest of the application; every key may be supplied through the environment,
// link-time build metadata, or the bundled configuration file.
const (
	KeyGoogleClientID     = "GOOGLE_CLIENT_ID"
	KeyDatabaseAPIBaseURL = "DATABASE_API_BASE_URL"
	KeyDatabaseAPITimeout = "DATABASE_API_TIMEOUT"
	KeyWebSocketBaseURL   = "WEBSOCKET_BASE_URL"
	KeyAppsFlyerDevKey    = "APPSFLYER_DEV_KEY"
	KeyAppleAppID         = "APPLE_APP_ID"
	KeyMixpanelToken      = "MIXPANEL_TOKEN"
)

// DefaultConfigPath is the bundled configuration file consulted when no
// explicit path is given.
const DefaultConfigPath = "snatchshot.conf"

// defaultDatabaseAPITimeout is the fallback, in seconds, when
// DATABASE_API_TIMEOUT is absent or unparsable.
const defaultDatabaseAPITimeout = 30.0

// MandatoryKeys returns the keys whose absence makes the client unable to
// run at all.
func MandatoryKeys() []string {
	return []string{
		KeyGoogleClientID,
		KeyDatabaseAPIBaseURL,
		KeyWebSocketBaseURL,
		KeyAppsFlyerDevKey,
		KeyAppleAppID,
		KeyMixpanelToken,
	}
}

// secretKeys lists keys whose values must not appear in diagnostics output.
var secretKeys = map[string]bool{
	KeyGoogleClientID:  true,
	KeyAppsFlyerDevKey: true,
	KeyMixpanelToken:   true,
}

// IsSecret reports whether a key's value should be redacted in diagnostics.
func IsSecret(key string) bool {
	return secretKeys[key]
}

// Settings aggregates the fully resolved client configuration.
type Settings struct {
	GoogleClientID     string
	DatabaseAPIBaseURL string
	DatabaseAPITimeout time.Duration
	WebSocketBaseURL   string
	AppsFlyerDevKey    string
	AppleAppID         string
	MixpanelToken      string
}

// Load resolves every recognized key up front and reports all missing
// mandatory keys in a single aggregated error, so a misconfigured deployment
// fails before any component starts rather than at first access.
func Load(resolver *Resolver) (Settings, error) {
	var (
		settings Settings
		errs     error
	)

	resolve := func(key string, dst *string) {
		value, err := resolver.String(key)
		if err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		*dst = value
	}

	resolve(KeyGoogleClientID, &settings.GoogleClientID)
	resolve(KeyDatabaseAPIBaseURL, &settings.DatabaseAPIBaseURL)
	resolve(KeyWebSocketBaseURL, &settings.WebSocketBaseURL)
	resolve(KeyAppsFlyerDevKey, &settings.AppsFlyerDevKey)
	resolve(KeyAppleAppID, &settings.AppleAppID)
	resolve(KeyMixpanelToken, &settings.MixpanelToken)

	seconds := resolver.Float(KeyDatabaseAPITimeout, defaultDatabaseAPITimeout)
	if seconds <= 0 {
		seconds = defaultDatabaseAPITimeout
	}
	settings.DatabaseAPITimeout = time.Duration(seconds * float64(time.Second))

	if errs != nil {
		return Settings{}, fmt.Errorf("startup configuration validation: %w", errs)
	}
	return settings, nil
}
