// Package common contains small helpers shared between services.
package common
