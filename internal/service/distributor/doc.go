// Package distributor implements the apply pipeline on a target host:
// resolve the update source (local path or remote URL), verify the
// checksum sidecar when one exists, extract the archive over the live
// deployment directory, record the change in git, and restart the
// project's service. Only resolution, verification and extraction can
// fail the pipeline; everything after is best-effort.
package distributor
