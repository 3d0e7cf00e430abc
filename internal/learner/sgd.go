package learner

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// DefaultAlpha is the L2 regularisation strength.
const DefaultAlpha = 1e-4

var (
	ErrClassesUndeclared = errors.New("classes must be declared on the first partial fit")
	ErrUnknownClass      = errors.New("label not among declared classes")
)

// SGDClassifier is a binary logistic-regression model trained by stochastic gradient
// descent with L2 penalty and the "optimal" learning-rate schedule
// eta = 1 / (alpha * (t0 + t)). Its state is plain data so it can be serialised
// between invocations and resumed exactly.
type SGDClassifier struct {
	Classes   []int     `json:"classes"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Alpha     float64   `json:"alpha"`
	T         float64   `json:"t"`
	Seed      uint64    `json:"seed"`
	Passes    int       `json:"passes"`
}

// NewSGDClassifier returns an untrained classifier for n features.
func NewSGDClassifier(n int, seed uint64) *SGDClassifier {
	return &SGDClassifier{Coef: make([]float64, n), Alpha: DefaultAlpha, T: 1, Seed: seed}
}

// Fitted reports whether the classes have been declared.
func (c *SGDClassifier) Fitted() bool { return len(c.Classes) == 2 }

// PartialFit performs one shuffled pass over (x, y). classes must be given on the
// first call and must match on later calls; nil means "already declared".
func (c *SGDClassifier) PartialFit(x [][]float64, y []int, classes []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("partial fit with %d rows and %d labels: %w", len(x), len(y), ErrEmptyBatch)
	}
	if err := checkDims(x, len(c.Coef)); err != nil {
		return err
	}
	switch {
	case classes == nil && !c.Fitted():
		return ErrClassesUndeclared
	case classes != nil:
		if len(classes) != 2 {
			return fmt.Errorf("binary classifier needs 2 classes, got %v", classes)
		}
		sorted := slices.Clone(classes)
		slices.Sort(sorted)
		if c.Fitted() && !slices.Equal(sorted, c.Classes) {
			return fmt.Errorf("classes %v differ from declared %v", sorted, c.Classes)
		}
		c.Classes = sorted
	}
	for _, label := range y {
		if !slices.Contains(c.Classes, label) {
			return fmt.Errorf("label %d: %w", label, ErrUnknownClass)
		}
	}

	alpha := c.Alpha
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	// Offset t0 so that the first step size is about 1/sqrt(sqrt(alpha)).
	typw := math.Sqrt(1.0 / math.Sqrt(alpha))
	t0 := 1.0 / (typw * alpha)

	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(c.Seed, uint64(c.Passes)))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for _, i := range order {
		yi := -1.0
		if y[i] == c.Classes[1] {
			yi = 1.0
		}
		p := floats.Dot(c.Coef, x[i]) + c.Intercept
		eta := 1.0 / (alpha * (t0 + c.T - 1))
		g := logLossGrad(p, yi)
		floats.Scale(1-eta*alpha, c.Coef)
		floats.AddScaled(c.Coef, -eta*g, x[i])
		c.Intercept -= eta * g
		c.T++
	}
	c.Passes++
	return nil
}

// PredictProba returns P(class = Classes[1]) for each row.
func (c *SGDClassifier) PredictProba(x [][]float64) ([]float64, error) {
	if !c.Fitted() {
		return nil, ErrNotFitted
	}
	if err := checkDims(x, len(c.Coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = sigmoid(floats.Dot(c.Coef, row) + c.Intercept)
	}
	return out, nil
}

// Predict labels each row with Classes[1] when its probability is at least 0.5.
func (c *SGDClassifier) Predict(x [][]float64) ([]int, error) {
	proba, err := c.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = c.Classes[0]
		if p >= 0.5 {
			out[i] = c.Classes[1]
		}
	}
	return out, nil
}

// logLossGrad is d/dp of log(1 + exp(-y p)), clamped for large margins.
func logLossGrad(p, y float64) float64 {
	z := p * y
	switch {
	case z > 18:
		return -y * math.Exp(-z)
	case z < -18:
		return -y
	default:
		return -y / (math.Exp(z) + 1)
	}
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
