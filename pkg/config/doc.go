// Package config provides the desired-state environment configuration model,
// its file-backed persistence, and process settings for StackPilot.
package config
