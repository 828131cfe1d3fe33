// Package mirror implements the mirror-and-reconcile engine: it walks a
// remote document library, downloads files whose names match the configured
// prefix into a local tree, optionally verifies what was written, and then
// applies a disposition (move to a done/error folder, delete, or nothing) to
// the remote copy.
//
// The engine is leaf-first:
//
//	Scheduler → Orchestrator → Walker → FileSync → {LocalPath, IntegrityChecker}
//
// Control flows back up only as Outcome values and run-level errors. Nothing
// is cached between runs; every run re-derives its work from the current
// remote tree.
package mirror
