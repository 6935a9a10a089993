package domain

// SnapshotMeta records where a trained-parameter snapshot lives and how it
// performed. The weights themselves stay in the snapshot file; this row is
// registry metadata only.
// Corresponds to model_snapshots table in PostgreSQL.
type SnapshotMeta struct {
	SnapshotID string  // PRIMARY KEY, deterministic hash
	RunID      string  // owning forecast run
	Epoch      int     // epoch at which the snapshot was taken
	ValLoss    float64 // validation loss at snapshot time
	Path       string  // snapshot file location
	Checksum   string  // sha256 of the snapshot file contents
	CreatedAt  int64   // record creation timestamp (ms)
}
