package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// ComputeSnapshotID computes a deterministic snapshot_id using SHA256.
// Formula: SHA256(run_id|epoch|val_loss)
// Returns hex-encoded hash (64 characters). val_loss is rendered with
// strconv 'g' shortest round-trip formatting so the identity is stable
// across processes.
func ComputeSnapshotID(runID string, epoch int, valLoss float64) string {
	data := fmt.Sprintf("%s|%d|%s",
		runID,
		epoch,
		strconv.FormatFloat(valLoss, 'g', -1, 64),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
