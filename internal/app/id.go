package app

import (
	"crypto/rand"
	"encoding/hex"
)

// newTenantID produces a 32-char random hex identifier. Workflow runs use
// UUIDs; tenant IDs keep the bare hex form so they embed cleanly in log
// lines and derived resource names.
func newTenantID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
