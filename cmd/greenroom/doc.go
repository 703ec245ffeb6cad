// Command greenroom is the CLI for the greenroom content-production
// pipeline: it runs the daemon and exposes catalog, participant,
// work-item, review, import, and reporting operations over the shared
// database.
package main
