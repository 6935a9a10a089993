package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"

	"patch-forecast-lab/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(symbol|interval|data_start_ms|data_end_ms|config_json)
// Returns hex-encoded hash (64 characters). The same data range and
// configuration always yield the same run identity.
func ComputeRunID(
	symbol string,
	interval domain.Interval,
	dataStartMs int64,
	dataEndMs int64,
	configJSON string,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%s",
		symbol,
		interval.String(),
		dataStartMs,
		dataEndMs,
		configJSON,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ShortID returns a base58 rendering of the leading 8 digest bytes of a
// hex ID, used in snapshot file names and log lines. Returns the input
// unchanged if it is not valid hex of sufficient length.
func ShortID(hexID string) string {
	if len(hexID) < 16 {
		return hexID
	}
	raw, err := hex.DecodeString(hexID[:16])
	if err != nil {
		return hexID
	}
	return base58.Encode(raw)
}
