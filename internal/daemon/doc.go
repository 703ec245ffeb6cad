// Package daemon composes the store, dispatch engines, rating engine, and
// deadline scheduler into a single long-running process with flock-based
// locking to prevent multiple instances from sharing one database.
package daemon
