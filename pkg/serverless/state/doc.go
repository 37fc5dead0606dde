// Package state is the serverless State-of-the-System:
// the authoritative, per-node ledger of cores, RAM, disk, resident
// images, in-flight image copies, and pinned images, plus the global
// queue of not-yet-bound invocations. Only the serverless compute
// service mutates a State; the scheduler family only ever sees it
// through the read-only Snapshot interface — the scheduler must never
// be given write access, only a consistent view to consult.
package state
