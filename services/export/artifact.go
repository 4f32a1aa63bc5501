package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"coinforecast/services/preprocess"
	"coinforecast/services/training"
)

// SchemaVersion of the artifact document. Decoders reject other versions.
const SchemaVersion = 1

// Metrics carries the loss metrics recorded at training time
type Metrics struct {
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
	TestLoss  float64 `json:"test_loss"`
	Epochs    int     `json:"epochs"`
}

// Artifact is the portable representation of a trained model: everything
// needed to serve predictions without the training data.
type Artifact struct {
	SchemaVersion int                      `json:"schema_version"`
	Pair          string                   `json:"pair"`
	TrainedAt     time.Time                `json:"trained_at"`
	WindowSize    int                      `json:"window_size"`
	FeatureNames  []string                 `json:"feature_names"`
	Scaler        *preprocess.MinMaxScaler `json:"scaler"`
	Network       *training.Network        `json:"network"`
	Metrics       Metrics                  `json:"metrics"`
	Checksum      string                   `json:"checksum"` // sha256 over the weight payload
}

// New builds an artifact from a trained network
func New(pair string, windowSize int, net *training.Network, scaler *preprocess.MinMaxScaler, metrics Metrics) (*Artifact, error) {
	if net == nil || scaler == nil {
		return nil, fmt.Errorf("network and scaler are required")
	}

	a := &Artifact{
		SchemaVersion: SchemaVersion,
		Pair:          pair,
		TrainedAt:     time.Now().UTC(),
		WindowSize:    windowSize,
		FeatureNames:  scaler.FeatureNames,
		Scaler:        scaler,
		Network:       net,
		Metrics:       metrics,
	}

	checksum, err := weightChecksum(net)
	if err != nil {
		return nil, err
	}
	a.Checksum = checksum

	return a, nil
}

// Encode serializes the artifact to its JSON interchange form
func (a *Artifact) Encode() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// Decode parses and verifies an artifact document
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}

	if a.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported artifact schema version %d", a.SchemaVersion)
	}
	if a.Network == nil || a.Scaler == nil {
		return nil, fmt.Errorf("artifact missing network or scaler")
	}
	if a.WindowSize <= 0 {
		return nil, fmt.Errorf("artifact has invalid window size %d", a.WindowSize)
	}
	if a.Network.InputSize != len(a.Scaler.Min) {
		return nil, fmt.Errorf("artifact network input %d does not match scaler width %d",
			a.Network.InputSize, len(a.Scaler.Min))
	}

	checksum, err := weightChecksum(a.Network)
	if err != nil {
		return nil, err
	}
	if checksum != a.Checksum {
		return nil, fmt.Errorf("artifact checksum mismatch")
	}

	return &a, nil
}

// Predict runs raw (unscaled) feature rows through the artifact. The window
// must contain at least WindowSize rows; the trailing rows are used.
func (a *Artifact) Predict(rows [][]float64) (float64, error) {
	if len(rows) < a.WindowSize {
		return 0, fmt.Errorf("need %d feature rows, got %d", a.WindowSize, len(rows))
	}

	window := rows[len(rows)-a.WindowSize:]
	scaled, err := a.Scaler.Transform(window)
	if err != nil {
		return 0, err
	}

	y, err := a.Network.Forward(scaled)
	if err != nil {
		return 0, err
	}

	return a.Scaler.InverseClose(y)
}

// weightChecksum hashes the canonical JSON encoding of the network weights
func weightChecksum(net *training.Network) (string, error) {
	payload, err := json.Marshal(net)
	if err != nil {
		return "", fmt.Errorf("failed to encode weights: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
