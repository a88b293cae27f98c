// Package github is a minimal client for the slice of the GitHub REST API
// this system consumes: release creation with idempotent tag lookup,
// release-asset upload, and repository creation. Calls are bearer-token
// authenticated and bounded; a timeout surfaces as a distinct error kind.
package github
