// Package packager implements the build-host pipeline: snapshot each
// project into a versioned archive with a latest alias, commit and tag the
// source repository around the build, and publish the archive as a release
// asset keyed by the version tag.
package packager
