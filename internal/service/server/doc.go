// Package server exposes the update pipeline over HTTP. It serves
// POST /update/{name} to apply an update to a configured project,
// POST /create-repo/{name} to bootstrap a new project repository, and
// GET /status to report recorded applies.
package server
