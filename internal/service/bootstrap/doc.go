// Package bootstrap creates a remote repository for a new project and
// pushes an initial commit from its local directory.
package bootstrap
