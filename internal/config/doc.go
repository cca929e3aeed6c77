// Package config loads the sgbridge configuration from a YAML or JSON file,
// applies environment overrides for the gateway credentials and listen
// address, and fills defaults for every optional field.
package config
