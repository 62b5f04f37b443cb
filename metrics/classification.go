package metrics

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/salescv/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MacroF1Name is the name of the classification selection metric.
const MacroF1Name = "macro_f1"

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassMetrics は1クラス分の適合率・再現率・F1・サポート
type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// AverageMetrics はクラス平均（macro / weighted）
type AverageMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport は scikit-learn の classification_report 相当の集計結果
type ClassificationReport struct {
	Classes     []ClassMetrics `json:"classes"`
	MacroAvg    AverageMetrics `json:"macro_avg"`
	WeightedAvg AverageMetrics `json:"weighted_avg"`
	Accuracy    float64        `json:"accuracy"`
	NSamples    int            `json:"n_samples"`
}

// Score は選択用スコア（macro F1）を返す
func (r ClassificationReport) Score() float64 {
	return r.MacroAvg.F1
}

// NewClassificationReport はクラスラベル（整数値の float64）から分類レポートを作る。
// 対象クラスは yTrue と yPred に現れるラベルの和集合。
// 分母が 0 になる指標は 0 とし、UndefinedMetricWarning を発生させる。
func NewClassificationReport(yTrue, yPred []float64) (ClassificationReport, error) {
	n := len(yTrue)
	if n == 0 {
		return ClassificationReport{}, errors.NewValueError("NewClassificationReport", "empty vector")
	}
	if len(yPred) != n {
		return ClassificationReport{}, errors.NewDimensionError("NewClassificationReport", n, len(yPred), 0)
	}

	labelSet := make(map[int]struct{})
	for i := 0; i < n; i++ {
		for _, v := range []float64{yTrue[i], yPred[i]} {
			if v != math.Trunc(v) {
				return ClassificationReport{}, errors.NewValueError("NewClassificationReport",
					fmt.Sprintf("non-integer class label %v", v))
			}
			labelSet[int(v)] = struct{}{}
		}
	}
	labels := make([]int, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	tp := make(map[int]int, len(labels))
	predCount := make(map[int]int, len(labels))
	support := make(map[int]int, len(labels))
	correct := 0
	for i := 0; i < n; i++ {
		t, p := int(yTrue[i]), int(yPred[i])
		support[t]++
		predCount[p]++
		if t == p {
			tp[t]++
			correct++
		}
	}

	report := ClassificationReport{
		Classes:  make([]ClassMetrics, 0, len(labels)),
		Accuracy: float64(correct) / float64(n),
		NSamples: n,
	}

	for _, l := range labels {
		cm := ClassMetrics{Label: l, Support: support[l]}
		cm.Precision = safeDiv(float64(tp[l]), float64(predCount[l]), "precision", l)
		cm.Recall = safeDiv(float64(tp[l]), float64(support[l]), "recall", l)
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		report.Classes = append(report.Classes, cm)

		report.MacroAvg.Precision += cm.Precision
		report.MacroAvg.Recall += cm.Recall
		report.MacroAvg.F1 += cm.F1

		w := float64(cm.Support)
		report.WeightedAvg.Precision += w * cm.Precision
		report.WeightedAvg.Recall += w * cm.Recall
		report.WeightedAvg.F1 += w * cm.F1
	}

	k := float64(len(labels))
	report.MacroAvg.Precision /= k
	report.MacroAvg.Recall /= k
	report.MacroAvg.F1 /= k
	report.MacroAvg.Support = n

	report.WeightedAvg.Precision /= float64(n)
	report.WeightedAvg.Recall /= float64(n)
	report.WeightedAvg.F1 /= float64(n)
	report.WeightedAvg.Support = n

	return report, nil
}

// MacroF1 はクラスごとの F1 の単純平均を返す
func MacroF1(yTrue, yPred []float64) (float64, error) {
	r, err := NewClassificationReport(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.MacroAvg.F1, nil
}

func safeDiv(num, den float64, metric string, label int) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric,
			fmt.Sprintf("no samples for label %d", label), 0))
		return 0
	}
	return num / den
}
