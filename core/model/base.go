package model

import (
	"github.com/YuminosukeSato/salescv/pkg/errors"
)

// EstimatorState はモデルの学習状態を表す
type EstimatorState int

const (
	// NotFitted はモデルが未学習の状態
	NotFitted EstimatorState = iota
	// Fitted はモデルが学習済みの状態
	Fitted
)

// BaseEstimator は全てのモデルの基底となる構造体。
// gob でエンコードできるようにフィールドは公開している。
type BaseEstimator struct {
	State     EstimatorState
	NFeatures int // 学習時の特徴量数
	NSamples  int // 学習時のサンプル数
}

// IsFitted はモデルが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted はモデルを学習済み状態に設定し、学習データの形状を記録する
func (e *BaseEstimator) SetFitted(nSamples, nFeatures int) {
	e.State = Fitted
	e.NSamples = nSamples
	e.NFeatures = nFeatures
}

// Reset はモデルを初期状態にリセットする
func (e *BaseEstimator) Reset() {
	*e = BaseEstimator{}
}

// CheckPredict は予測前の共通チェック（学習済みか、特徴量数が一致するか）を行う
func (e *BaseEstimator) CheckPredict(modelName string, nFeatures int) error {
	if !e.IsFitted() {
		return errors.NewNotFittedError(modelName, "Predict")
	}
	if nFeatures != e.NFeatures {
		return errors.NewDimensionError(modelName+".Predict", e.NFeatures, nFeatures, 1)
	}
	return nil
}
