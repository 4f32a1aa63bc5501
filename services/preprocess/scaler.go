package preprocess

import (
	"encoding/json"
	"fmt"
)

// MinMaxScaler scales feature columns to [0, 1] based on the fitted range.
// It is fitted on training rows only and applied to all splits.
type MinMaxScaler struct {
	FeatureNames []string  `json:"feature_names"`
	Min          []float64 `json:"min"`
	Max          []float64 `json:"max"`
}

// Fit computes per-column min and max from the given rows
func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("cannot fit scaler on empty data")
	}

	width := len(rows[0])
	s.Min = make([]float64, width)
	s.Max = make([]float64, width)
	copy(s.Min, rows[0])
	copy(s.Max, rows[0])

	for _, row := range rows {
		if len(row) != width {
			return fmt.Errorf("inconsistent row width: got %d, want %d", len(row), width)
		}
		for j, v := range row {
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
		}
	}

	if s.FeatureNames == nil {
		s.FeatureNames = FeatureNames()
	}

	return nil
}

// Transform scales rows into new slices, leaving the input untouched
func (s *MinMaxScaler) Transform(rows [][]float64) ([][]float64, error) {
	if len(s.Min) == 0 {
		return nil, fmt.Errorf("scaler not fitted")
	}

	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.Min) {
			return nil, fmt.Errorf("row width %d does not match scaler width %d", len(row), len(s.Min))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = s.scale(j, v)
		}
		out[i] = scaled
	}

	return out, nil
}

// scale maps one value into [0, 1]; constant columns scale to 0
func (s *MinMaxScaler) scale(col int, v float64) float64 {
	span := s.Max[col] - s.Min[col]
	if span == 0 {
		return 0
	}
	return (v - s.Min[col]) / span
}

// InverseColumn maps a scaled value of one column back to its original range
func (s *MinMaxScaler) InverseColumn(col int, v float64) (float64, error) {
	if len(s.Min) == 0 {
		return 0, fmt.Errorf("scaler not fitted")
	}
	if col < 0 || col >= len(s.Min) {
		return 0, fmt.Errorf("column %d out of range", col)
	}
	return v*(s.Max[col]-s.Min[col]) + s.Min[col], nil
}

// InverseClose de-scales a predicted close value
func (s *MinMaxScaler) InverseClose(v float64) (float64, error) {
	return s.InverseColumn(CloseColumn, v)
}

// MarshalScaler serializes the scaler to JSON
func MarshalScaler(s *MinMaxScaler) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// UnmarshalScaler deserializes a scaler from JSON
func UnmarshalScaler(data []byte) (*MinMaxScaler, error) {
	var s MinMaxScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scaler: %w", err)
	}
	if len(s.Min) == 0 || len(s.Min) != len(s.Max) {
		return nil, fmt.Errorf("invalid scaler parameters")
	}
	return &s, nil
}
