// Package checkpoint persists trained parameters as a single JSON snapshot
// file. JSON renders each float64 with the shortest representation that
// parses back to the same bits, so a save/load cycle is exact.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"patch-forecast-lab/internal/nn"
)

var (
	ErrNoSnapshot    = errors.New("snapshot file does not exist")
	ErrShapeMismatch = errors.New("snapshot does not match model parameter shapes")
)

// Snapshot is one full copy of a model's trainable weights plus the
// validation point it was taken at.
type Snapshot struct {
	SavedAtMs int64       `json:"saved_at_ms"`
	Epoch     int         `json:"epoch"`
	ValLoss   float64     `json:"val_loss"`
	Params    [][]float64 `json:"params"` // one flat slice per parameter, model order
}

// Capture copies the current parameter values into a new snapshot.
func Capture(epoch int, valLoss float64, params []nn.Parameter) *Snapshot {
	s := &Snapshot{
		SavedAtMs: time.Now().UnixMilli(),
		Epoch:     epoch,
		ValLoss:   valLoss,
		Params:    make([][]float64, len(params)),
	}
	for i, p := range params {
		data, _ := p.Flat()
		s.Params[i] = append([]float64(nil), data...)
	}
	return s
}

// Restore copies the snapshot values back into the parameters. The parameter
// set must have the shapes the snapshot was captured from.
func (s *Snapshot) Restore(params []nn.Parameter) error {
	if len(params) != len(s.Params) {
		return fmt.Errorf("%w: %d tensors, snapshot has %d", ErrShapeMismatch, len(params), len(s.Params))
	}
	for i, p := range params {
		data, _ := p.Flat()
		if len(data) != len(s.Params[i]) {
			return fmt.Errorf("%w: tensor %d has %d values, snapshot has %d", ErrShapeMismatch, i, len(data), len(s.Params[i]))
		}
	}
	for i, p := range params {
		data, _ := p.Flat()
		copy(data, s.Params[i])
	}
	return nil
}

// Save writes the snapshot to path atomically (temp file + rename).
func Save(path string, s *Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save. Returns ErrNoSnapshot if the file
// does not exist.
func Load(path string) (*Snapshot, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, path)
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// FileChecksum returns the hex sha256 of the snapshot file contents, the
// value recorded in the snapshot registry row.
func FileChecksum(path string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read snapshot for checksum: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
