package backtest

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"Cortexa/internal/learner"
	"Cortexa/internal/model"
	"Cortexa/internal/strategy"
)

// EvalParams configures an offline train/test evaluation.
type EvalParams struct {
	Horizon  int
	TestSize float64 // fraction of rows held out at the end, default 0.2
	Epochs   int     // passes over the train slice, default 5
	Seed     uint64
	strategy.Rule
}

// Evaluation is the outcome of Evaluate.
type Evaluation struct {
	TrainRows int
	TestRows  int
	Accuracy  float64
	Confusion learner.Confusion
	// Proba holds the predicted probability of every input row, train and test.
	Proba    []float64
	Backtest *Result
	// Mean take-profit / stop-loss targets over the held-out rows; zero unless
	// the rows came from features.LabelWithTargets.
	TPPct float64
	SLPct float64
}

// Evaluate fits a fresh scaler and classifier on the leading rows, scores the
// trailing held-out rows and backtests only those. The split keeps time order.
func Evaluate(rows []model.LabeledRow, p EvalParams) (*Evaluation, error) {
	if p.TestSize == 0 {
		p.TestSize = 0.2
	}
	if p.Epochs == 0 {
		p.Epochs = 5
	}
	if p.TestSize <= 0 || p.TestSize >= 1 {
		return nil, fmt.Errorf("test size %v not in (0,1): %w", p.TestSize, ErrMalformedInput)
	}
	if err := (Params{Horizon: p.Horizon, Rule: p.Rule}).Validate(); err != nil {
		return nil, err
	}

	nTest := max(1, int(float64(len(rows))*p.TestSize))
	nTrain := len(rows) - nTest
	if nTrain < 1 || nTest < 1 {
		return nil, fmt.Errorf("%d rows cannot be split %.2f: %w", len(rows), p.TestSize, ErrMalformedInput)
	}

	x, y := model.Matrix(rows)
	scaler := learner.NewScaler(model.NumFeatures)
	if err := scaler.Fit(x[:nTrain]); err != nil {
		return nil, err
	}
	z, err := scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	clf := learner.NewSGDClassifier(model.NumFeatures, p.Seed)
	classes := []int{0, 1}
	for e := 0; e < p.Epochs; e++ {
		if err := clf.PartialFit(z[:nTrain], y[:nTrain], classes); err != nil {
			return nil, err
		}
		classes = nil
	}

	proba, err := clf.PredictProba(z)
	if err != nil {
		return nil, err
	}
	pred, err := clf.Predict(z[nTrain:])
	if err != nil {
		return nil, err
	}
	conf, err := learner.ConfusionMatrix(y[nTrain:], pred)
	if err != nil {
		return nil, err
	}

	res, err := Run(Predictions(rows[nTrain:], proba[nTrain:]), Params{Horizon: p.Horizon, Rule: p.Rule})
	if err != nil {
		return nil, err
	}

	test := rows[nTrain:]
	tp := make([]float64, len(test))
	sl := make([]float64, len(test))
	for i, r := range test {
		tp[i], sl[i] = r.TPPct, r.SLPct
	}

	return &Evaluation{
		TPPct:     stat.Mean(tp, nil),
		SLPct:     stat.Mean(sl, nil),
		TrainRows: nTrain,
		TestRows:  nTest,
		Accuracy:  conf.Accuracy(),
		Confusion: conf,
		Proba:     proba,
		Backtest:  res,
	}, nil
}

// Predictions pairs labeled rows with probabilities for Run or the report writers.
func Predictions(rows []model.LabeledRow, proba []float64) []model.Prediction {
	out := make([]model.Prediction, len(rows))
	for i, r := range rows {
		out[i] = model.Prediction{Time: r.Time, ForwardReturn: r.ForwardReturn, Proba: proba[i]}
	}
	return out
}
