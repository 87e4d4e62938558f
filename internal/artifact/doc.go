// Package artifact owns the host-side output tree of a scenario run.
//
// Ownership boundary:
// - per-actor output directories
// - artifact digests (BLAKE3)
// - run manifest
package artifact
