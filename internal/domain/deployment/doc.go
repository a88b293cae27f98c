// Package deployment holds the domain model for applied updates: who
// applied what, where, and when. Records are persisted through the state
// repository and exposed read-only by the HTTP facade.
package deployment
