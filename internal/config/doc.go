// Package config provides centralized configuration management for the
// verification service, covering the API server, storage and queue backends,
// verifier behavior, and chain access.
package config
