package ml

import "testing"

func trainedModel(t *testing.T) *GBDT {
	t.Helper()
	features := [][]float64{
		{0.1, 1}, {0.2, 0}, {0.15, 1}, {0.25, 0}, {0.05, 1},
		{0.8, 0}, {0.9, 1}, {0.85, 0}, {0.75, 1}, {0.95, 0},
	}
	labels := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	model := &GBDT{}
	if err := model.Train(features, labels, TrainConfig{Trees: 20, MaxDepth: 3, LearningRate: 0.3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return model
}

func TestGBDTTrainPredict(t *testing.T) {
	model := trainedModel(t)

	low, err := model.Predict([]float64{0.1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := model.Predict([]float64{0.9, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low < 0 || low > 1 || high < 0 || high > 1 {
		t.Fatalf("probabilities out of range: %v %v", low, high)
	}
	if low >= 0.5 {
		t.Fatalf("expected low probability for left cluster, got %v", low)
	}
	if high <= 0.5 {
		t.Fatalf("expected high probability for right cluster, got %v", high)
	}
}

func TestGBDTDeterministic(t *testing.T) {
	model := trainedModel(t)

	first, err := model.Predict([]float64{0.42, 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := model.Predict([]float64{0.42, 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("same input produced different probabilities: %v vs %v", first, second)
	}
}

func TestGBDTUntrained(t *testing.T) {
	model := &GBDT{}
	if _, err := model.Predict([]float64{1, 2}); err == nil {
		t.Fatal("expected error for untrained model")
	}
}

func TestGBDTRejectsBadLabels(t *testing.T) {
	model := &GBDT{}
	err := model.Train([][]float64{{1}, {2}}, []int{0, 2}, TrainConfig{})
	if err == nil {
		t.Fatal("expected error for non-binary labels")
	}
}

func TestGBDTSizeMismatch(t *testing.T) {
	model := &GBDT{}
	if err := model.Train([][]float64{{1}}, []int{0, 1}, TrainConfig{}); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}
