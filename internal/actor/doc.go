// Package actor owns the scenario participant boundary.
//
// Ownership boundary:
// - the capability set every actor offers (Actor)
//
// - readiness polling and timeout reporting
//
// - named key events
//
// - backends: Machine (shell transport + xdotool), Terminal (local PTY)
//
// Actor does not provision, boot or tear down the hosts it talks to.
package actor
