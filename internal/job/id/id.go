// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// New returns a new random job id.
func New() string {
	return uuid.NewString()
}
