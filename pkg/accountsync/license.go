package accountsync

import (
	"strings"

	"github.com/google/uuid"
)

// NewLicenseKey generates an opaque license key. Keys carry 122 bits of
// randomness rendered as an uppercase identifier, which makes collisions
// impossible in practice. A key is issued once per subscription lifetime;
// the engine preserves an existing key on reprocessing.
func NewLicenseKey() string {
	return strings.ToUpper(uuid.NewString())
}
