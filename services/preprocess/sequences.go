package preprocess

import (
	"fmt"
)

// Sequence is one training example: a window of scaled feature rows and the
// scaled close of the row immediately after the window.
type Sequence struct {
	Window [][]float64
	Label  float64
}

// Split holds the three chronological dataset splits
type Split struct {
	Train [][]float64
	Val   [][]float64
	Test  [][]float64
}

// SplitChronological splits rows into train/val/test without shuffling.
// Fractions apply to the row count; the remainder goes to test.
func SplitChronological(rows [][]float64, trainFrac, valFrac float64) (*Split, error) {
	if trainFrac <= 0 || valFrac < 0 || trainFrac+valFrac >= 1 {
		return nil, fmt.Errorf("invalid split fractions: train=%.2f val=%.2f", trainFrac, valFrac)
	}

	n := len(rows)
	trainEnd := int(float64(n) * trainFrac)
	valEnd := trainEnd + int(float64(n)*valFrac)

	return &Split{
		Train: rows[:trainEnd],
		Val:   rows[trainEnd:valEnd],
		Test:  rows[valEnd:],
	}, nil
}

// MakeSequences builds sliding windows over scaled rows. A split shorter
// than window+1 rows yields no sequences.
func MakeSequences(rows [][]float64, window int) ([]Sequence, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}

	if len(rows) < window+1 {
		return nil, nil
	}

	sequences := make([]Sequence, 0, len(rows)-window)
	for i := 0; i+window < len(rows); i++ {
		sequences = append(sequences, Sequence{
			Window: rows[i : i+window],
			Label:  rows[i+window][CloseColumn],
		})
	}

	return sequences, nil
}

// Prepare runs the full preprocessing step: split raw feature rows, fit the
// scaler on the train split, scale all splits and window them.
func Prepare(rows [][]float64, window int, trainFrac, valFrac float64) (train, val, test []Sequence, scaler *MinMaxScaler, err error) {
	split, err := SplitChronological(rows, trainFrac, valFrac)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	scaler = &MinMaxScaler{}
	if err := scaler.Fit(split.Train); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to fit scaler: %w", err)
	}

	scaledTrain, err := scaler.Transform(split.Train)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	scaledVal, err := scaler.Transform(split.Val)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	scaledTest, err := scaler.Transform(split.Test)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	train, err = MakeSequences(scaledTrain, window)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(train) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("not enough rows for training: have %d, need more than %d", len(split.Train), window)
	}

	val, err = MakeSequences(scaledVal, window)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	test, err = MakeSequences(scaledTest, window)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return train, val, test, scaler, nil
}
