// Package config resolves named configuration values from an ordered chain of
// sources (process environment, link-time build metadata, bundled KEY = VALUE
// file) with precedence: Environment > Build metadata > Config file. Mandatory
// identity and endpoint settings have no defaults and are validated all at
// once at startup; tunable numeric settings fall back to documented defaults.
package config
