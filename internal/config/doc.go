// Package config loads and validates the YAML project registry shared by
// the fleet-packager and fleet-updater binaries. Validation fills defaults
// in place, so a loaded Config is always complete.
package config
