package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"readmit/ml"
	"readmit/monitoring"
	"readmit/schema"
	"readmit/scoring"
)

func testService(t *testing.T, load bool) (*scoring.Service, *monitoring.Collector) {
	t.Helper()

	collector := monitoring.NewCollector()
	service := scoring.NewService(zap.NewNop(), collector, 64)
	if !load {
		return service, collector
	}

	s := schema.Schema{Fields: []schema.Field{
		{Name: "age", Kind: schema.KindNumeric, Median: 54},
		{Name: "bmi", Kind: schema.KindNumeric, Median: 27.4},
		{Name: "smoker", Kind: schema.KindCategorical, Categories: []string{"No", "Yes"}},
		{Name: "icd_code", Kind: schema.KindCategorical, Categories: []string{"E11.9", "J44.1"}},
	}}
	transformer, err := schema.NewTransformer(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var features [][]float64
	var labels []int
	for i := 0; i < 40; i++ {
		age := 30 + i*2
		vector, err := transformer.Transform(schema.Row{"age": age, "bmi": 26.0, "smoker": "No", "icd_code": "E11.9"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		features = append(features, vector)
		label := 0
		if age > 65 {
			label = 1
		}
		labels = append(labels, label)
	}
	model := &ml.GBDT{}
	if err := model.Train(features, labels, ml.TrainConfig{Trees: 10, MaxDepth: 2, LearningRate: 0.3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.bundle")
	if err := ml.NewBundle(model, s, time.Now()).Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return service, collector
}

func testMux(t *testing.T, load bool) *http.ServeMux {
	t.Helper()
	service, collector := testService(t, load)
	mux := http.NewServeMux()
	NewHandlers(service, collector, nil, nil, zap.NewNop()).Register(mux)
	return mux
}

func TestHandleScore(t *testing.T) {
	mux := testMux(t, true)

	body := `{"rows":[
		{"row_id":"r1","age":72,"bmi":33.5,"smoker":"Yes","icd_code":"J44.1"},
		{"row_id":"r2","age":41,"bmi":22.0,"smoker":"No","icd_code":"Z00.999"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload struct {
		Predictions []scoring.RowResult `json:"predictions"`
		N           int                 `json:"n"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.N != 2 || len(payload.Predictions) != 2 {
		t.Fatalf("expected 2 predictions, got %+v", payload)
	}
	for i, prediction := range payload.Predictions {
		if prediction.Probability == nil {
			t.Fatalf("prediction %d missing probability: %+v", i, prediction)
		}
		if p := *prediction.Probability; p < 0 || p > 1 {
			t.Fatalf("prediction %d out of range: %v", i, p)
		}
	}
	if payload.Predictions[0].RowID != "r1" || payload.Predictions[1].RowID != "r2" {
		t.Fatal("expected row ids echoed in order")
	}
}

func TestHandleScoreIsolatesMalformedRow(t *testing.T) {
	mux := testMux(t, true)

	body := `{"rows":[{"age":45},42,{"age":80}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload scoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.N != 3 {
		t.Fatalf("expected 3 entries, got %d", payload.N)
	}
	if payload.Predictions[0].Probability == nil || payload.Predictions[2].Probability == nil {
		t.Fatal("expected valid probabilities for rows 1 and 3")
	}
	if payload.Predictions[1].Error == "" || payload.Predictions[1].Probability != nil {
		t.Fatalf("expected error marker for row 2, got %+v", payload.Predictions[1])
	}
}

func TestHandleScoreNotReady(t *testing.T) {
	mux := testMux(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(`{"rows":[{"age":70}]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandleScoreBadRequest(t *testing.T) {
	mux := testMux(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(`{"rows":[]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty rows, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(`not json`))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	mux := testMux(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before load, got %d", w.Code)
	}

	mux = testMux(t, true)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after load, got %d", w.Code)
	}

	var health scoring.Health
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !health.Ready || health.State != "ready" || health.ModelVersion == "" {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestHandleMetadata(t *testing.T) {
	mux := testMux(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/metadata", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload struct {
		ModelVersion string          `json:"model_version"`
		SchemaWidth  int             `json:"schema_width"`
		Fields       []metadataField `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.ModelVersion == "" || len(payload.Fields) != 4 {
		t.Fatalf("unexpected metadata: %+v", payload)
	}
	if payload.Fields[0].Name != "age" || payload.Fields[0].Kind != "numeric" {
		t.Fatalf("unexpected first field: %+v", payload.Fields[0])
	}
}

func TestHandleStats(t *testing.T) {
	mux := testMux(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader(`{"rows":[{"age":70}]}`))
	mux.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats monitoring.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if stats.Requests != 1 || stats.Rows != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
