package ml

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Accuracy is the share of matching labels.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// ROCAUC computes the area under the ROC curve from the rank statistic, with
// tied scores sharing their average rank.
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	n := len(yTrue)
	if n != len(scores) {
		return 0, fmt.Errorf("%d labels but %d scores", n, len(scores))
	}
	var nPos, nNeg int
	for _, y := range yTrue {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, errors.New("only one class present in y_true; ROC AUC is not defined")
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue[idx[k]] == 1 {
				rankSumPos += avgRank
			}
		}
		i = j + 1
	}
	p := float64(nPos)
	return (rankSumPos - p*(p+1)/2) / (p * float64(nNeg)), nil
}

// R2Score is the coefficient of determination. A constant target scores 1
// when predicted exactly and 0 otherwise.
func R2Score(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))
	var ssRes, ssTot float64
	for i, v := range yTrue {
		d := v - yPred[i]
		ssRes += d * d
		t := v - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// ConfusionMatrix counts [true][predicted] for binary labels.
func ConfusionMatrix(yTrue, yPred []int) [][]int {
	cm := [][]int{{0, 0}, {0, 0}}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t > 1 || p < 0 || p > 1 {
			continue
		}
		cm[t][p]++
	}
	return cm
}

// ClassMetrics are the per-label scores of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

func classMetrics(cm [][]int, label int) ClassMetrics {
	tp := cm[label][label]
	var predicted, actual int
	for k := 0; k < 2; k++ {
		predicted += cm[k][label]
		actual += cm[label][k]
	}
	m := ClassMetrics{Support: actual}
	if predicted > 0 {
		m.Precision = float64(tp) / float64(predicted)
	}
	if actual > 0 {
		m.Recall = float64(tp) / float64(actual)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// ClassificationReport renders per-class precision, recall and F1 followed by
// accuracy and the macro and support-weighted averages.
func ClassificationReport(yTrue, yPred []int) string {
	cm := ConfusionMatrix(yTrue, yPred)
	rows := []ClassMetrics{classMetrics(cm, 0), classMetrics(cm, 1)}
	total := len(yTrue)

	var macro, weighted ClassMetrics
	for _, r := range rows {
		macro.Precision += r.Precision / 2
		macro.Recall += r.Recall / 2
		macro.F1 += r.F1 / 2
		if total > 0 {
			w := float64(r.Support) / float64(total)
			weighted.Precision += r.Precision * w
			weighted.Recall += r.Recall * w
			weighted.F1 += r.F1 * w
		}
	}
	macro.Support, weighted.Support = total, total

	const width = len("weighted avg")
	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for label, r := range rows {
		fmt.Fprintf(&b, "%*d  %9.2f %9.2f %9.2f %9d\n", width, label, r.Precision, r.Recall, r.F1, r.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", Accuracy(yTrue, yPred), total)
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, "macro avg", macro.Precision, macro.Recall, macro.F1, macro.Support)
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, "weighted avg", weighted.Precision, weighted.Recall, weighted.F1, weighted.Support)
	return b.String()
}
