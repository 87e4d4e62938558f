// Package scenario owns the convergence scenario driver.
//
// Ownership boundary:
// - run context (params, actors, recordings, collected artifacts)
//
// - barrier phase runner
//
// - the phase sequence and the convergence assertion
//
// Phase order:
// - boot-sync -> recorder-launch -> recorder-warmup -> recording-start
//
// - editor-launch -> editor-ready -> input -> save-stop -> collect -> verify
//
// Every actor finishes phase K before any actor starts phase K+1.
// Actors are visited one at a time; the first error ends the run.
//
// Scenario does not create or tear down actors.
package scenario
