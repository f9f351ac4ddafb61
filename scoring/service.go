// Package scoring orchestrates the feature transformer and the loaded model
// artifact behind a batch request boundary.
package scoring

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"readmit/ml"
	"readmit/monitoring"
	"readmit/schema"
)

// ErrNotReady is returned for scoring requests while the artifact is still
// loading or has failed to load.
var ErrNotReady = errors.New("model artifact not ready")

// State is the service lifecycle. Failed is terminal until process restart.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// RowResult is one entry of a batch response, in input order. Probability is
// nil when the row failed; Error carries the per-row reason.
type RowResult struct {
	RowID       string   `json:"row_id,omitempty"`
	Probability *float64 `json:"probability"`
	Error       string   `json:"error,omitempty"`
}

// Health reports whether scoring can currently succeed.
type Health struct {
	State        string `json:"state"`
	Ready        bool   `json:"ready"`
	ModelVersion string `json:"model_version,omitempty"`
}

// Service owns the loaded artifact. The bundle and transformer are written
// once during Load and read-only afterward, so scoring requests share them
// without further locking.
type Service struct {
	logger    *zap.Logger
	collector *monitoring.Collector

	mu          sync.RWMutex
	state       State
	bundle      *ml.Bundle
	model       *ml.GBDT
	transformer *schema.Transformer

	cache *lru.Cache[uint64, float64]
}

func NewService(logger *zap.Logger, collector *monitoring.Collector, cacheSize int) *Service {
	s := &Service{
		logger:    logger,
		collector: collector,
		state:     StateUninitialized,
	}
	if cacheSize > 0 {
		// Scoring is deterministic, so cached probabilities never go stale
		// within one artifact's lifetime.
		cache, err := lru.New[uint64, float64](cacheSize)
		if err == nil {
			s.cache = cache
		}
	}
	return s
}

// Load reads the bundle at path and moves the service to Ready, or to
// Failed on any load error.
func (s *Service) Load(path string) error {
	s.setState(StateLoading)

	bundle, err := ml.LoadBundle(path)
	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("artifact load failed", zap.String("path", path), zap.Error(err))
		return err
	}
	transformer, err := schema.NewTransformer(bundle.Schema)
	if err != nil {
		s.setState(StateFailed)
		s.logger.Error("artifact schema invalid", zap.String("path", path), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.bundle = bundle
	s.model = bundle.Model()
	s.transformer = transformer
	s.state = StateReady
	s.mu.Unlock()

	s.logger.Info("model artifact loaded",
		zap.String("path", path),
		zap.String("model_version", bundle.ModelVersion),
		zap.Int("trees", len(bundle.Trees)),
		zap.Int("schema_width", bundle.Schema.Width()))
	return nil
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) Health() Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := Health{State: s.state.String(), Ready: s.state == StateReady}
	if s.bundle != nil {
		h.ModelVersion = s.bundle.ModelVersion
	}
	return h
}

// Bundle returns the loaded artifact, or nil before a successful Load.
func (s *Service) Bundle() *ml.Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

// ScoreBatch scores rows in order. A nil row stands for a structurally
// unreadable input and yields a per-row error; one bad row never aborts its
// siblings.
func (s *Service) ScoreBatch(rows []schema.Row) ([]RowResult, error) {
	start := time.Now()

	s.mu.RLock()
	state := s.state
	model := s.model
	transformer := s.transformer
	s.mu.RUnlock()

	if state != StateReady {
		return nil, ErrNotReady
	}

	results := make([]RowResult, len(rows))
	failed := 0
	for i, row := range rows {
		result := RowResult{RowID: rowID(row)}
		probability, err := s.scoreRow(model, transformer, row)
		if err != nil {
			result.Error = err.Error()
			failed++
		} else {
			p := probability
			result.Probability = &p
		}
		results[i] = result
	}

	s.collector.RecordBatch(len(rows), failed, time.Since(start))
	return results, nil
}

func (s *Service) scoreRow(model *ml.GBDT, transformer *schema.Transformer, row schema.Row) (float64, error) {
	vector, err := transformer.Transform(row)
	if err != nil {
		return 0, err
	}

	key := vectorKey(vector)
	if s.cache != nil {
		if probability, ok := s.cache.Get(key); ok {
			s.collector.RecordCacheHit()
			return probability, nil
		}
	}

	probability, err := model.Predict(vector)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Add(key, probability)
	}
	return probability, nil
}

// rowID picks up an optional caller-supplied identifier; it is echoed back,
// never used as a feature.
func rowID(row schema.Row) string {
	if row == nil {
		return ""
	}
	for _, key := range []string{"row_id", "patient_id", "member_id", "person_id"} {
		if v, ok := row[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func vectorKey(vector []float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range vector {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
