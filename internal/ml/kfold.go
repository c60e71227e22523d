package ml

import "fmt"

// Fold is one cross-validation round: indices to fit on and to score on.
type Fold = Split

// StratifiedKFold assigns each row to one of k test folds without shuffling.
// Classes are ordered by first appearance; the per-class fold allocation is
// taken from striding over the class-sorted labels, so each fold receives a
// near-equal share of every class and rows within a class fill folds in order.
func StratifiedKFold(y []int, k int) ([]Fold, error) {
	n := len(y)
	if k < 2 {
		return nil, fmt.Errorf("k-fold needs at least 2 splits, got %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot have %d splits with only %d samples", k, n)
	}

	// encode by order of first appearance
	code := make(map[int]int)
	encoded := make([]int, n)
	for i, label := range y {
		c, ok := code[label]
		if !ok {
			c = len(code)
			code[label] = c
		}
		encoded[i] = c
	}
	nClasses := len(code)
	counts := make([]int, nClasses)
	for _, c := range encoded {
		counts[c]++
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if k > maxCount {
		return nil, fmt.Errorf("n_splits=%d cannot be greater than the number of members in each class", k)
	}

	// sorted encoded labels
	order := make([]int, 0, n)
	for c := 0; c < nClasses; c++ {
		for j := 0; j < counts[c]; j++ {
			order = append(order, c)
		}
	}
	// allocation[f][c] = count of class c in order[f::k]
	allocation := make([][]int, k)
	for f := 0; f < k; f++ {
		allocation[f] = make([]int, nClasses)
		for i := f; i < n; i += k {
			allocation[f][order[i]]++
		}
	}

	testFold := make([]int, n)
	for c := 0; c < nClasses; c++ {
		assign := make([]int, 0, counts[c])
		for f := 0; f < k; f++ {
			for j := 0; j < allocation[f][c]; j++ {
				assign = append(assign, f)
			}
		}
		next := 0
		for i := 0; i < n; i++ {
			if encoded[i] == c {
				testFold[i] = assign[next]
				next++
			}
		}
	}

	folds := make([]Fold, k)
	for i := 0; i < n; i++ {
		for f := 0; f < k; f++ {
			if testFold[i] == f {
				folds[f].Test = append(folds[f].Test, i)
			} else {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
	}
	return folds, nil
}
