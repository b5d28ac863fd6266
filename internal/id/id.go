package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a short-ish random id for runs and batches.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
