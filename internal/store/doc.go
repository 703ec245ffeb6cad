// Package store provides SQLite persistence for users, catalog entities, and
// the work-item and review lifecycles. All invariants that the engines rely
// on (one active work item per producer, one occupying work item per topic,
// one pending review per reviewer) are enforced here with partial unique
// indexes plus transactional check-and-create, so a lost race surfaces as
// ErrConstraintRace and never as corrupted state.
package store
