package preprocess

import (
	"coinforecast/services/marketdata"
)

// Column index of the close feature, used for labels and de-scaling
const CloseColumn = 3

// FeatureNames returns the feature columns in order
func FeatureNames() []string {
	return []string{
		"open",
		"high",
		"low",
		"close",
		"volume_from",
		"volume_to",
		"day_of_week",
		"day_of_month",
		"week_of_year",
		"close_change",
	}
}

// NumFeatures is the width of one feature row
func NumFeatures() int {
	return len(FeatureNames())
}

// BuildFeatures converts hourly bars into feature rows.
// Rows keep the chronological order of the input bars.
func BuildFeatures(bars []marketdata.Bar) [][]float64 {
	rows := make([][]float64, 0, len(bars))

	prevClose := 0.0
	for i, bar := range bars {
		change := 0.0
		if i > 0 && prevClose != 0 {
			change = bar.Close - prevClose
		}

		_, week := bar.Time.ISOWeek()
		row := []float64{
			bar.Open,
			bar.High,
			bar.Low,
			bar.Close,
			bar.VolumeFrom,
			bar.VolumeTo,
			float64(bar.Time.Weekday()),
			float64(bar.Time.Day()),
			float64(week),
			change,
		}
		rows = append(rows, row)
		prevClose = bar.Close
	}

	return rows
}
