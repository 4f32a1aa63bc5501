package export

import (
	"fmt"
	"math"

	"coinforecast/services/preprocess"
	"coinforecast/services/training"
)

// Maximum prediction divergence tolerated between the live network and its
// exported form
const ValidationTolerance = 1e-9

// MaxValidationSamples caps how many held-out windows the validation runs
const MaxValidationSamples = 32

// Validate re-decodes exported artifact bytes and compares predictions
// against the in-memory network on held-out windows. A divergence above the
// tolerance fails the export.
func Validate(encoded []byte, net *training.Network, samples []preprocess.Sequence) error {
	if len(samples) == 0 {
		return fmt.Errorf("no validation samples")
	}

	decoded, err := Decode(encoded)
	if err != nil {
		return fmt.Errorf("exported artifact does not decode: %w", err)
	}

	n := len(samples)
	if n > MaxValidationSamples {
		n = MaxValidationSamples
	}

	for idx := 0; idx < n; idx++ {
		window := samples[idx].Window

		want, err := net.Forward(window)
		if err != nil {
			return err
		}
		got, err := decoded.Network.Forward(window)
		if err != nil {
			return fmt.Errorf("exported network failed on sample %d: %w", idx, err)
		}

		if diff := math.Abs(want - got); diff > ValidationTolerance {
			return fmt.Errorf("exported model diverges on sample %d: |%g - %g| = %g",
				idx, want, got, diff)
		}
	}

	return nil
}
