// Package config loads typed settings for the server and taskctl from
// defaults, an optional config.yaml and TECHTREE_* environment variables,
// and validates them before anything is started.
package config
