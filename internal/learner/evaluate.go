package learner

import "fmt"

// Confusion is a binary confusion matrix with class 1 as positive.
type Confusion struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

func (c Confusion) String() string {
	return fmt.Sprintf("[[%d %d] [%d %d]]", c.TN, c.FP, c.FN, c.TP)
}

// Total is the number of scored samples.
func (c Confusion) Total() int { return c.TN + c.FP + c.FN + c.TP }

// Accuracy is the share of correct predictions, 0 for an empty matrix.
func (c Confusion) Accuracy() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.TN+c.TP) / float64(c.Total())
}

// ConfusionMatrix tallies predictions against truth. Slices must have equal length.
func ConfusionMatrix(truth, pred []int) (Confusion, error) {
	var c Confusion
	if len(truth) != len(pred) {
		return c, fmt.Errorf("confusion: %d labels vs %d predictions: %w", len(truth), len(pred), ErrDimension)
	}
	for i := range truth {
		switch {
		case truth[i] == 1 && pred[i] == 1:
			c.TP++
		case truth[i] == 1:
			c.FN++
		case pred[i] == 1:
			c.FP++
		default:
			c.TN++
		}
	}
	return c, nil
}

// Accuracy is a shorthand for ConfusionMatrix(truth, pred).Accuracy().
func Accuracy(truth, pred []int) (float64, error) {
	c, err := ConfusionMatrix(truth, pred)
	if err != nil {
		return 0, err
	}
	return c.Accuracy(), nil
}
