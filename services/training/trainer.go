package training

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"

	"coinforecast/services/preprocess"
)

// Config holds the training hyperparameters for one pair
type Config struct {
	Symbol       string
	WindowSize   int
	HiddenSize   int
	Epochs       int
	BatchSize    int
	LearningRate float64
	ClipNorm     float64
	Patience     int
	Seed         int64
}

// DefaultConfig returns the default hyperparameters
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:       symbol,
		WindowSize:   120,
		HiddenSize:   64,
		Epochs:       30,
		BatchSize:    32,
		LearningRate: 1e-3,
		ClipNorm:     5,
		Patience:     5,
		Seed:         42,
	}
}

// Validate checks the config before training
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return errors.New("symbol is required")
	}
	if c.WindowSize <= 0 {
		return errors.New("window size must be positive")
	}
	if c.Epochs <= 0 {
		return errors.New("epochs must be positive")
	}
	if c.HiddenSize <= 0 {
		return errors.New("hidden size must be positive")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 1e-3
	}
	if c.Patience <= 0 {
		c.Patience = 5
	}
	return nil
}

// Metrics holds the loss metrics of a finished training run
type Metrics struct {
	TrainLoss float64
	ValLoss   float64
	TestLoss  float64
	Epochs    int
}

// Train fits a network on the train sequences, early-stopping on validation
// loss, and reports the test loss of the best network.
func Train(cfg Config, train, val, test []preprocess.Sequence) (*Network, Metrics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, Metrics{}, err
	}
	if len(train) == 0 {
		return nil, Metrics{}, errors.New("no training sequences")
	}

	inputSize := len(train[0].Window[0])
	rng := rand.New(rand.NewSource(cfg.Seed))
	net := NewNetwork(inputSize, cfg.HiddenSize, rng)
	opt := newAdam(inputSize, cfg.HiddenSize, cfg.LearningRate)
	grads := newGradients(inputSize, cfg.HiddenSize)

	best := net.Clone()
	bestVal := math.Inf(1)
	sinceImproved := 0
	epochs := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		epochs = epoch
		order := rng.Perm(len(train))

		for start := 0; start < len(order); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[start:end]

			grads.reset()
			for _, idx := range batch {
				seq := train[idx]
				y, caches, err := net.forward(seq.Window, true)
				if err != nil {
					return nil, Metrics{}, err
				}
				// MSE over the batch: d/dy mean((y-label)^2)
				dy := 2 * (y - seq.Label) / float64(len(batch))
				net.backward(caches, dy, grads)
			}

			clipGradients(grads, cfg.ClipNorm)
			opt.step(net, grads)
		}

		trainLoss, err := MeanSquaredError(net, train)
		if err != nil {
			return nil, Metrics{}, err
		}

		valLoss := trainLoss
		if len(val) > 0 {
			valLoss, err = MeanSquaredError(net, val)
			if err != nil {
				return nil, Metrics{}, err
			}
		}

		log.Printf("[%s] epoch %d/%d train_loss=%.6f val_loss=%.6f",
			cfg.Symbol, epoch, cfg.Epochs, trainLoss, valLoss)

		if valLoss < bestVal {
			bestVal = valLoss
			best = net.Clone()
			sinceImproved = 0
		} else {
			sinceImproved++
			if sinceImproved >= cfg.Patience {
				log.Printf("[%s] early stopping after %d epochs", cfg.Symbol, epoch)
				break
			}
		}
	}

	metrics := Metrics{ValLoss: bestVal, Epochs: epochs}

	var err error
	metrics.TrainLoss, err = MeanSquaredError(best, train)
	if err != nil {
		return nil, Metrics{}, err
	}
	if len(test) > 0 {
		metrics.TestLoss, err = MeanSquaredError(best, test)
		if err != nil {
			return nil, Metrics{}, err
		}
	}
	if len(val) == 0 {
		metrics.ValLoss = metrics.TrainLoss
	}

	return best, metrics, nil
}

// MeanSquaredError computes the MSE of the network over the sequences
func MeanSquaredError(net *Network, seqs []preprocess.Sequence) (float64, error) {
	if len(seqs) == 0 {
		return 0, fmt.Errorf("no sequences")
	}

	sum := 0.0
	for _, seq := range seqs {
		y, err := net.Forward(seq.Window)
		if err != nil {
			return 0, err
		}
		diff := y - seq.Label
		sum += diff * diff
	}

	return sum / float64(len(seqs)), nil
}

// clipGradients rescales gradients if their global L2 norm exceeds maxNorm
func clipGradients(g *gradients, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}

	sum := 0.0
	walkGradients(g, func(v float64) float64 {
		sum += v * v
		return v
	})

	norm := math.Sqrt(sum)
	if norm <= maxNorm {
		return
	}

	scale := maxNorm / norm
	walkGradients(g, func(v float64) float64 {
		return v * scale
	})
}

// walkGradients applies fn to every gradient value in place
func walkGradients(g *gradients, fn func(float64) float64) {
	for _, row := range g.Wx {
		for i, v := range row {
			row[i] = fn(v)
		}
	}
	for _, row := range g.Wh {
		for i, v := range row {
			row[i] = fn(v)
		}
	}
	for i, v := range g.B {
		g.B[i] = fn(v)
	}
	for i, v := range g.Wy {
		g.Wy[i] = fn(v)
	}
	g.By = fn(g.By)
}

// adam is the Adam optimizer state over all network parameters
type adam struct {
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	t       int

	mWx, vWx [][]float64
	mWh, vWh [][]float64
	mB, vB   []float64
	mWy, vWy []float64
	mBy, vBy float64
}

func newAdam(inputSize, hiddenSize int, lr float64) *adam {
	return &adam{
		lr:      lr,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		mWx:     zeroMatrix(4*hiddenSize, inputSize),
		vWx:     zeroMatrix(4*hiddenSize, inputSize),
		mWh:     zeroMatrix(4*hiddenSize, hiddenSize),
		vWh:     zeroMatrix(4*hiddenSize, hiddenSize),
		mB:      make([]float64, 4*hiddenSize),
		vB:      make([]float64, 4*hiddenSize),
		mWy:     make([]float64, hiddenSize),
		vWy:     make([]float64, hiddenSize),
	}
}

// step applies one Adam update to the network in place
func (a *adam) step(net *Network, g *gradients) {
	a.t++

	for r := range net.Wx {
		a.updateSlice(net.Wx[r], g.Wx[r], a.mWx[r], a.vWx[r])
	}
	for r := range net.Wh {
		a.updateSlice(net.Wh[r], g.Wh[r], a.mWh[r], a.vWh[r])
	}
	a.updateSlice(net.B, g.B, a.mB, a.vB)
	a.updateSlice(net.Wy, g.Wy, a.mWy, a.vWy)
	net.By = a.updateOne(net.By, g.By, &a.mBy, &a.vBy)
}

func (a *adam) updateSlice(p, g, m, v []float64) {
	for i := range p {
		p[i] = a.updateOne(p[i], g[i], &m[i], &v[i])
	}
}

func (a *adam) updateOne(p, g float64, m, v *float64) float64 {
	*m = a.beta1**m + (1-a.beta1)*g
	*v = a.beta2**v + (1-a.beta2)*g*g

	mHat := *m / (1 - math.Pow(a.beta1, float64(a.t)))
	vHat := *v / (1 - math.Pow(a.beta2, float64(a.t)))

	return p - a.lr*mHat/(math.Sqrt(vHat)+a.epsilon)
}
