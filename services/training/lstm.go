package training

import (
	"fmt"
	"math"
	"math/rand"
)

// Network is a single-layer LSTM with a dense regression head. It maps a
// window of feature rows to one scalar, the scaled next close.
//
// Gate weights are stored row-major with gates concatenated in the order
// input, forget, cell, output: rows [0,H) are the input gate, [H,2H) the
// forget gate, [2H,3H) the cell candidate and [3H,4H) the output gate.
type Network struct {
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`

	Wx [][]float64 `json:"wx"` // 4H x F, input projection
	Wh [][]float64 `json:"wh"` // 4H x H, recurrent projection
	B  []float64   `json:"b"`  // 4H, gate bias

	Wy []float64 `json:"wy"` // H, dense head
	By float64   `json:"by"`
}

// NewNetwork creates a network with uniform random weights in
// [-1/sqrt(hidden), 1/sqrt(hidden)].
func NewNetwork(inputSize, hiddenSize int, rng *rand.Rand) *Network {
	scale := 1.0 / math.Sqrt(float64(hiddenSize))

	n := &Network{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wx:         randomMatrix(4*hiddenSize, inputSize, scale, rng),
		Wh:         randomMatrix(4*hiddenSize, hiddenSize, scale, rng),
		B:          make([]float64, 4*hiddenSize),
		Wy:         randomVector(hiddenSize, scale, rng),
	}

	// Forget gate bias starts at 1 so early training retains cell state
	for r := hiddenSize; r < 2*hiddenSize; r++ {
		n.B[r] = 1
	}

	return n
}

func randomMatrix(rows, cols int, scale float64, rng *rand.Rand) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		m[r] = randomVector(cols, scale, rng)
	}
	return m
}

func randomVector(n int, scale float64, rng *rand.Rand) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * scale
	}
	return v
}

// Clone returns a deep copy of the network
func (n *Network) Clone() *Network {
	c := &Network{
		InputSize:  n.InputSize,
		HiddenSize: n.HiddenSize,
		Wx:         copyMatrix(n.Wx),
		Wh:         copyMatrix(n.Wh),
		B:          append([]float64(nil), n.B...),
		Wy:         append([]float64(nil), n.Wy...),
		By:         n.By,
	}
	return c
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// stepCache holds the per-timestep values needed by the backward pass
type stepCache struct {
	x     []float64
	hPrev []float64
	cPrev []float64
	i     []float64
	f     []float64
	g     []float64
	o     []float64
	c     []float64
	tanhC []float64
	h     []float64
}

// Forward runs the window through the network and returns the prediction
func (n *Network) Forward(window [][]float64) (float64, error) {
	y, _, err := n.forward(window, false)
	return y, err
}

func (n *Network) forward(window [][]float64, keepCache bool) (float64, []stepCache, error) {
	if len(window) == 0 {
		return 0, nil, fmt.Errorf("empty window")
	}

	H := n.HiddenSize
	h := make([]float64, H)
	c := make([]float64, H)

	var caches []stepCache
	if keepCache {
		caches = make([]stepCache, 0, len(window))
	}

	for _, x := range window {
		if len(x) != n.InputSize {
			return 0, nil, fmt.Errorf("input width %d does not match network input size %d", len(x), n.InputSize)
		}

		iGate := make([]float64, H)
		fGate := make([]float64, H)
		gGate := make([]float64, H)
		oGate := make([]float64, H)

		for k := 0; k < H; k++ {
			iGate[k] = sigmoid(n.gatePreact(k, x, h))
			fGate[k] = sigmoid(n.gatePreact(H+k, x, h))
			gGate[k] = math.Tanh(n.gatePreact(2*H+k, x, h))
			oGate[k] = sigmoid(n.gatePreact(3*H+k, x, h))
		}

		cNext := make([]float64, H)
		tanhC := make([]float64, H)
		hNext := make([]float64, H)
		for k := 0; k < H; k++ {
			cNext[k] = fGate[k]*c[k] + iGate[k]*gGate[k]
			tanhC[k] = math.Tanh(cNext[k])
			hNext[k] = oGate[k] * tanhC[k]
		}

		if keepCache {
			caches = append(caches, stepCache{
				x:     x,
				hPrev: h,
				cPrev: c,
				i:     iGate,
				f:     fGate,
				g:     gGate,
				o:     oGate,
				c:     cNext,
				tanhC: tanhC,
				h:     hNext,
			})
		}

		h = hNext
		c = cNext
	}

	y := n.By
	for k := 0; k < H; k++ {
		y += n.Wy[k] * h[k]
	}

	return y, caches, nil
}

// gatePreact computes one gate row pre-activation: B[r] + Wx[r]·x + Wh[r]·h
func (n *Network) gatePreact(r int, x, h []float64) float64 {
	z := n.B[r]
	wx := n.Wx[r]
	for j, xv := range x {
		z += wx[j] * xv
	}
	wh := n.Wh[r]
	for k, hv := range h {
		z += wh[k] * hv
	}
	return z
}

// gradients accumulates parameter gradients across a mini-batch
type gradients struct {
	Wx [][]float64
	Wh [][]float64
	B  []float64
	Wy []float64
	By float64
}

func newGradients(inputSize, hiddenSize int) *gradients {
	return &gradients{
		Wx: zeroMatrix(4*hiddenSize, inputSize),
		Wh: zeroMatrix(4*hiddenSize, hiddenSize),
		B:  make([]float64, 4*hiddenSize),
		Wy: make([]float64, hiddenSize),
	}
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		m[r] = make([]float64, cols)
	}
	return m
}

func (g *gradients) reset() {
	for _, row := range g.Wx {
		zero(row)
	}
	for _, row := range g.Wh {
		zero(row)
	}
	zero(g.B)
	zero(g.Wy)
	g.By = 0
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}

// backward accumulates gradients for one sample via backpropagation through
// time. dy is dLoss/dPrediction for this sample.
func (n *Network) backward(caches []stepCache, dy float64, grads *gradients) {
	H := n.HiddenSize
	last := caches[len(caches)-1]

	grads.By += dy
	dh := make([]float64, H)
	for k := 0; k < H; k++ {
		grads.Wy[k] += dy * last.h[k]
		dh[k] = n.Wy[k] * dy
	}

	dc := make([]float64, H)
	dz := make([]float64, 4*H)

	for t := len(caches) - 1; t >= 0; t-- {
		cache := caches[t]

		for k := 0; k < H; k++ {
			tc := cache.tanhC[k]

			do := dh[k] * tc
			dc[k] += dh[k] * cache.o[k] * (1 - tc*tc)

			di := dc[k] * cache.g[k]
			df := dc[k] * cache.cPrev[k]
			dg := dc[k] * cache.i[k]

			dz[k] = di * cache.i[k] * (1 - cache.i[k])
			dz[H+k] = df * cache.f[k] * (1 - cache.f[k])
			dz[2*H+k] = dg * (1 - cache.g[k]*cache.g[k])
			dz[3*H+k] = do * cache.o[k] * (1 - cache.o[k])
		}

		for r := 0; r < 4*H; r++ {
			d := dz[r]
			if d == 0 {
				continue
			}
			wxRow := grads.Wx[r]
			for j, xv := range cache.x {
				wxRow[j] += d * xv
			}
			whRow := grads.Wh[r]
			for k, hv := range cache.hPrev {
				whRow[k] += d * hv
			}
			grads.B[r] += d
		}

		// Propagate to the previous timestep
		for k := 0; k < H; k++ {
			sum := 0.0
			for r := 0; r < 4*H; r++ {
				sum += dz[r] * n.Wh[r][k]
			}
			dh[k] = sum
			dc[k] = dc[k] * cache.f[k]
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
