// Package recorder owns the screen-recorder control contract.
//
// Ownership boundary:
// - recorder launch/start/stop command lines
// - stop reply parsing into a typed handle
package recorder
