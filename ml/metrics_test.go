package ml

import (
	"math"
	"testing"
)

func TestRocAUCPerfectRanking(t *testing.T) {
	probs := []float64{0.1, 0.2, 0.8, 0.9}
	labels := []int{0, 0, 1, 1}
	if auc := RocAUC(probs, labels); auc != 1 {
		t.Fatalf("expected AUC 1, got %v", auc)
	}
}

func TestRocAUCReversedRanking(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.2, 0.1}
	labels := []int{0, 0, 1, 1}
	if auc := RocAUC(probs, labels); auc != 0 {
		t.Fatalf("expected AUC 0, got %v", auc)
	}
}

func TestRocAUCTiedScores(t *testing.T) {
	probs := []float64{0.5, 0.5, 0.5, 0.5}
	labels := []int{0, 1, 0, 1}
	if auc := RocAUC(probs, labels); math.Abs(auc-0.5) > 1e-9 {
		t.Fatalf("expected AUC 0.5 for constant scores, got %v", auc)
	}
}

func TestRocAUCSingleClass(t *testing.T) {
	if auc := RocAUC([]float64{0.4, 0.6}, []int{1, 1}); auc != 0 {
		t.Fatalf("expected 0 for single-class labels, got %v", auc)
	}
}

func TestAveragePrecisionPerfect(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.2, 0.1}
	labels := []int{1, 1, 0, 0}
	if ap := AveragePrecision(probs, labels); ap != 1 {
		t.Fatalf("expected AP 1, got %v", ap)
	}
}

func TestAveragePrecisionMixed(t *testing.T) {
	// Ranked order: pos, neg, pos, neg -> AP = (1/1 + 2/3) / 2
	probs := []float64{0.9, 0.8, 0.7, 0.6}
	labels := []int{1, 0, 1, 0}
	want := (1.0 + 2.0/3.0) / 2
	if ap := AveragePrecision(probs, labels); math.Abs(ap-want) > 1e-9 {
		t.Fatalf("expected AP %v, got %v", want, ap)
	}
}
