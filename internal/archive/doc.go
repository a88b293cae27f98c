// Package archive builds, verifies and unpacks project update archives.
//
// An archive is a zip snapshot of a project tree with relative in-archive
// paths, a fixed directory/file exclusion policy and a flattened appendix
// of auxiliary files. Its content hash travels in a hex-encoded sidecar
// file next to the archive, and the newest archive of a project is
// reachable through a hard-linked latest alias that is replaced atomically.
package archive
