// Package config loads scenario files and turns their actor entries into
// actors.
//
// Ownership boundary:
// - TOML and YAML decoding onto scenario defaults
//
// - actor transport selection (ssh, local, terminal)
//
// - scenario templates for `convergectl init`
package config
