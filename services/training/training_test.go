package training

import (
	"math/rand"
	"testing"

	"coinforecast/services/preprocess"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomWindow(rng *rand.Rand, steps, width int) [][]float64 {
	window := make([][]float64, steps)
	for t := range window {
		row := make([]float64, width)
		for j := range row {
			row[j] = rng.Float64()
		}
		window[t] = row
	}
	return window
}

// syntheticSequences builds windows whose label is a noiseless linear
// function of the last row, which a small network can fit quickly
func syntheticSequences(rng *rand.Rand, n, steps, width int) []preprocess.Sequence {
	seqs := make([]preprocess.Sequence, n)
	for i := range seqs {
		window := randomWindow(rng, steps, width)
		last := window[steps-1]
		seqs[i] = preprocess.Sequence{
			Window: window,
			Label:  0.5 * last[0],
		}
	}
	return seqs
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("BTC_USD")
	require.NoError(t, cfg.Validate())

	cfg.Symbol = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("BTC_USD")
	cfg.WindowSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig("BTC_USD")
	cfg.Epochs = -1
	assert.Error(t, cfg.Validate())

	// Optional knobs fall back to defaults instead of failing
	cfg = DefaultConfig("BTC_USD")
	cfg.BatchSize = 0
	cfg.LearningRate = 0
	cfg.Patience = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 1e-3, cfg.LearningRate)
	assert.Equal(t, 5, cfg.Patience)
}

func TestNewNetworkShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork(10, 4, rng)

	require.Len(t, net.Wx, 16)
	require.Len(t, net.Wx[0], 10)
	require.Len(t, net.Wh, 16)
	require.Len(t, net.Wh[0], 4)
	require.Len(t, net.B, 16)
	require.Len(t, net.Wy, 4)

	// Forget gate bias rows start at 1
	for r := 4; r < 8; r++ {
		assert.Equal(t, 1.0, net.B[r])
	}
	assert.Equal(t, 0.0, net.B[0])
}

func TestCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork(3, 2, rng)

	clone := net.Clone()
	clone.Wx[0][0] += 1
	clone.Wh[0][0] += 1
	clone.B[0] += 1
	clone.Wy[0] += 1

	assert.NotEqual(t, net.Wx[0][0], clone.Wx[0][0])
	assert.NotEqual(t, net.Wh[0][0], clone.Wh[0][0])
	assert.NotEqual(t, net.B[0], clone.B[0])
	assert.NotEqual(t, net.Wy[0], clone.Wy[0])
}

func TestForwardErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork(3, 2, rng)

	_, err := net.Forward(nil)
	assert.Error(t, err)

	_, err = net.Forward([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestForwardDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	net := NewNetwork(4, 3, rng)
	window := randomWindow(rng, 5, 4)

	y1, err := net.Forward(window)
	require.NoError(t, err)
	y2, err := net.Forward(window)
	require.NoError(t, err)

	assert.Equal(t, y1, y2)
}

// TestBackwardMatchesNumericalGradient checks the analytic gradients of
// backpropagation through time against central finite differences of the
// squared error loss.
func TestBackwardMatchesNumericalGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	net := NewNetwork(2, 3, rng)
	window := randomWindow(rng, 4, 2)
	label := 0.3

	y, caches, err := net.forward(window, true)
	require.NoError(t, err)

	grads := newGradients(net.InputSize, net.HiddenSize)
	net.backward(caches, 2*(y-label), grads)

	loss := func() float64 {
		out, err := net.Forward(window)
		require.NoError(t, err)
		diff := out - label
		return diff * diff
	}

	const eps = 1e-6
	check := func(name string, param *float64, analytic float64) {
		orig := *param
		*param = orig + eps
		plus := loss()
		*param = orig - eps
		minus := loss()
		*param = orig

		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, analytic, 1e-4, "gradient mismatch for %s", name)
	}

	for r := range net.Wx {
		for j := range net.Wx[r] {
			check("Wx", &net.Wx[r][j], grads.Wx[r][j])
		}
	}
	for r := range net.Wh {
		for k := range net.Wh[r] {
			check("Wh", &net.Wh[r][k], grads.Wh[r][k])
		}
	}
	for r := range net.B {
		check("B", &net.B[r], grads.B[r])
	}
	for k := range net.Wy {
		check("Wy", &net.Wy[k], grads.Wy[k])
	}
	check("By", &net.By, grads.By)
}

func TestClipGradients(t *testing.T) {
	g := newGradients(1, 1)
	g.Wx[0][0] = 3
	g.Wx[1][0] = 4
	// norm is 5, clipping to 1 rescales by 0.2
	clipGradients(g, 1)

	assert.InDelta(t, 0.6, g.Wx[0][0], 1e-12)
	assert.InDelta(t, 0.8, g.Wx[1][0], 1e-12)

	// Below the threshold nothing changes
	g.reset()
	g.Wy[0] = 0.5
	clipGradients(g, 1)
	assert.Equal(t, 0.5, g.Wy[0])
}

func TestTrainReducesLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	train := syntheticSequences(rng, 60, 5, 2)
	val := syntheticSequences(rng, 12, 5, 2)

	cfg := Config{
		Symbol:       "BTC_USD",
		WindowSize:   5,
		HiddenSize:   8,
		Epochs:       20,
		BatchSize:    16,
		LearningRate: 1e-2,
		ClipNorm:     5,
		Patience:     20,
		Seed:         42,
	}

	// The untrained network is initialized from the same seed, so its loss
	// is the starting point of the run
	initial := NewNetwork(2, cfg.HiddenSize, rand.New(rand.NewSource(cfg.Seed)))
	initialLoss, err := MeanSquaredError(initial, train)
	require.NoError(t, err)

	net, metrics, err := Train(cfg, train, val, nil)
	require.NoError(t, err)
	require.NotNil(t, net)

	assert.Less(t, metrics.TrainLoss, initialLoss)
	assert.Greater(t, metrics.Epochs, 0)
	assert.LessOrEqual(t, metrics.Epochs, cfg.Epochs)
}

func TestTrainDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	train := syntheticSequences(rng, 40, 4, 2)

	cfg := Config{
		Symbol:       "ETH_USD",
		WindowSize:   4,
		HiddenSize:   4,
		Epochs:       5,
		BatchSize:    8,
		LearningRate: 1e-2,
		ClipNorm:     5,
		Patience:     5,
		Seed:         9,
	}

	_, first, err := Train(cfg, train, nil, nil)
	require.NoError(t, err)

	_, second, err := Train(cfg, train, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestTrainErrors(t *testing.T) {
	cfg := DefaultConfig("BTC_USD")

	_, _, err := Train(cfg, nil, nil, nil)
	assert.Error(t, err)

	cfg.Symbol = ""
	_, _, err = Train(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestMeanSquaredError(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	net := NewNetwork(2, 2, rng)
	window := randomWindow(rng, 3, 2)

	y, err := net.Forward(window)
	require.NoError(t, err)

	seqs := []preprocess.Sequence{{Window: window, Label: y + 2}}
	mse, err := MeanSquaredError(net, seqs)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, mse, 1e-9)

	_, err = MeanSquaredError(net, nil)
	assert.Error(t, err)
}
