// Package gitops models git synchronization as ordered, named steps with a
// per-step continue-on-failure policy. Build hosts use it to commit and tag
// around packaging; target hosts use it to record applied updates. Steps
// run through a Runner so tests can substitute a fake for the git binary.
package gitops
