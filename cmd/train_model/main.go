package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"readmit/dataset"
	"readmit/ml"
	"readmit/schema"
)

func main() {
	claimsPath := flag.String("claims", "data/claims.csv", "claims CSV path")
	patientsPath := flag.String("patients", "data/patients.csv", "patients CSV path")
	artifactsDir := flag.String("artifacts", "artifacts", "artifact output directory")
	labelColumn := flag.String("label", "", "label column (default: auto-detect)")
	encoding := flag.String("encoding", "", "CSV encoding (utf8 or latin1)")
	trees := flag.Int("trees", 100, "number of boosting rounds")
	maxDepth := flag.Int("max_depth", 3, "max tree depth")
	learningRate := flag.Float64("learning_rate", 0.1, "shrinkage per round")
	minLeaf := flag.Int("min_leaf", 50, "min samples per leaf")
	testRatio := flag.Float64("test_ratio", 0.25, "validation share")
	minCategory := flag.Int("min_category", 10, "min occurrences for a known category")
	seed := flag.Int64("seed", 42, "split seed")
	flag.Parse()

	claims, err := dataset.ReadCSV(*claimsPath, *encoding)
	if err != nil {
		log.Fatalf("failed to read claims: %v", err)
	}
	var patients *dataset.Table
	if *patientsPath != "" {
		patients, err = dataset.ReadCSV(*patientsPath, *encoding)
		if err != nil {
			log.Fatalf("failed to read patients: %v", err)
		}
	}

	prepared, err := dataset.Prepare(claims, patients, dataset.Options{
		LabelColumn:      *labelColumn,
		TestRatio:        *testRatio,
		Seed:             *seed,
		MinCategoryCount: *minCategory,
	})
	if err != nil {
		log.Fatalf("failed to prepare training data: %v", err)
	}
	log.Printf("label=%s train=%d valid=%d schema_width=%d",
		prepared.LabelColumn, len(prepared.TrainRows), len(prepared.ValidRows), prepared.Schema.Width())

	transformer, err := schema.NewTransformer(prepared.Schema)
	if err != nil {
		log.Fatalf("invalid schema: %v", err)
	}
	trainX, err := encodeRows(transformer, prepared.TrainRows)
	if err != nil {
		log.Fatalf("failed to encode training rows: %v", err)
	}
	validX, err := encodeRows(transformer, prepared.ValidRows)
	if err != nil {
		log.Fatalf("failed to encode validation rows: %v", err)
	}

	model := &ml.GBDT{}
	if err := model.Train(trainX, prepared.TrainLabels, ml.TrainConfig{
		Trees:          *trees,
		MaxDepth:       *maxDepth,
		LearningRate:   *learningRate,
		MinLeafSamples: *minLeaf,
	}); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	probs := make([]float64, len(validX))
	for i, vector := range validX {
		p, err := model.Predict(vector)
		if err != nil {
			log.Fatalf("failed to score validation row %d: %v", i, err)
		}
		probs[i] = p
	}
	rocAUC := ml.RocAUC(probs, prepared.ValidLabels)
	prAUC := ml.AveragePrecision(probs, prepared.ValidLabels)
	log.Printf("valid_roc_auc=%.3f valid_pr_auc=%.3f", rocAUC, prAUC)

	trainedAt := time.Now()
	bundle := ml.NewBundle(model, prepared.Schema, trainedAt)
	bundlePath := filepath.Join(*artifactsDir, "model.bundle")
	if err := bundle.Save(bundlePath); err != nil {
		log.Fatalf("failed to save bundle: %v", err)
	}

	if err := writeModelCard(*artifactsDir, modelCard{
		ModelVersion: bundle.ModelVersion,
		Metrics:      map[string]float64{"valid_roc_auc": rocAUC, "valid_pr_auc": prAUC},
		Prevalence:   prevalence(prepared.ValidLabels),
		NTrain:       len(prepared.TrainRows),
		NValid:       len(prepared.ValidRows),
		LabelColumn:  prepared.LabelColumn,
		GeneratedAt:  trainedAt.UTC(),
	}); err != nil {
		log.Fatalf("failed to write model card: %v", err)
	}

	fmt.Printf("model saved to %s\n", bundlePath)
}

type modelCard struct {
	ModelVersion string             `json:"model_version"`
	Metrics      map[string]float64 `json:"metrics"`
	Prevalence   float64            `json:"prevalence_valid"`
	NTrain       int                `json:"n_train"`
	NValid       int                `json:"n_valid"`
	LabelColumn  string             `json:"label_col"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

func writeModelCard(dir string, card modelCard) error {
	payload, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "model_card.json"), payload, 0o600)
}

func encodeRows(transformer *schema.Transformer, rows []schema.Row) ([][]float64, error) {
	vectors := make([][]float64, len(rows))
	for i, row := range rows {
		vector, err := transformer.Transform(row)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func prevalence(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	positives := 0
	for _, label := range labels {
		positives += label
	}
	return float64(positives) / float64(len(labels))
}
