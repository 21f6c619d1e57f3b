package coordinator

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a stable, non-reversible identifier for a Backend's
// connection parameters, suitable for logging and telemetry payloads that
// must never carry a raw credential. Mirrors the "never persist the secret
// itself" posture the teacher's auth package takes with user passwords,
// substituting blake2b-256 for a keyed password hash since the goal here is
// a stable fingerprint rather than a verifiable proof.
func (b Backend) Fingerprint() string {
	material := fmt.Sprintf("%s:%d/%s@%s", b.Host, b.Port, b.Database, b.User)
	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:8])
}
