// Package nodeid derives a default NodeID when the host does not
// assign one explicitly, grounded on the teacher's hardware-backed
// machine identity adapter.
package nodeid

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// appID scopes the derived machine id to this library so it never
// collides with another application's use of the same hardware id.
const appID = "conexus-fleet-node"

// Default derives a stable NodeID from the host's hardware identity.
// If the platform has no machine id available (common in minimal
// containers), it falls back to a random uuid — still unique across
// the fleet, just not stable across restarts.
func Default() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		return uuid.NewString()
	}
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])[:32]
}
