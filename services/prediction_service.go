package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lakshima2000/paddyHealth-backend/classifier"
	"github.com/Lakshima2000/paddyHealth-backend/models"
	"github.com/Lakshima2000/paddyHealth-backend/realtime"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

// Prediction states reported to the client.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddyhealth_predictions_total",
		Help: "Prediction jobs by outcome",
	}, []string{"outcome"})
	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paddyhealth_inference_duration_seconds",
		Help:    "Time spent classifying one image",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paddyhealth_predictions_in_flight",
		Help: "Prediction jobs currently running",
	})
)

// ErrServiceClosed is returned by Submit after Close.
var ErrServiceClosed = errors.New("prediction service is closed")

// PredictionJob is one accepted upload waiting to be classified.
type PredictionJob struct {
	UserID    *uint
	SessionID string
	FilePath  string
}

// Result is the payload pushed after a successful prediction.
type Result struct {
	Prediction   string  `json:"prediction"`
	Confidence   float64 `json:"confidence"`
	PredictionID uint    `json:"prediction_id"`
	Status       string  `json:"status"`
	SessionID    string  `json:"session_id"`
	Cure         string  `json:"cure"`
	CureSI       string  `json:"cure_si"`
	CureTA       string  `json:"cure_ta"`
}

// Failure is the payload pushed when a job could not produce a prediction.
type Failure struct {
	Error     string `json:"error"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

// PredictionService runs each submitted job on its own goroutine.
type PredictionService struct {
	db         *gorm.DB
	classifier classifier.Classifier
	publisher  realtime.Publisher
	log        *zap.SugaredLogger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPredictionService wires the classifier to storage and push delivery.
// pub may be nil to skip pushing results; log may be nil.
func NewPredictionService(db *gorm.DB, c classifier.Classifier, pub realtime.Publisher, log *zap.SugaredLogger) *PredictionService {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PredictionService{
		db:         db,
		classifier: c,
		publisher:  pub,
		log:        log,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Submit starts processing job in the background and returns immediately.
// Jobs are neither queued nor retried; the caller owns nothing once Submit succeeds.
func (s *PredictionService) Submit(job PredictionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}
	s.wg.Add(1)
	jobsInFlight.Inc()
	go func() {
		defer s.wg.Done()
		defer jobsInFlight.Dec()
		s.process(s.baseCtx, job)
	}()
	return nil
}

// Close stops accepting jobs. Running jobs continue; use Wait or Shutdown to drain them.
func (s *PredictionService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Wait blocks until every submitted job has finished.
func (s *PredictionService) Wait() {
	s.wg.Wait()
}

// Shutdown closes the service and waits for running jobs until ctx expires,
// then cancels whatever is still in flight.
func (s *PredictionService) Shutdown(ctx context.Context) error {
	s.Close()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *PredictionService) process(ctx context.Context, job PredictionJob) {
	log := s.log.With("session_id", job.SessionID, "file", job.FilePath)
	defer s.removeUpload(log, job.FilePath)

	start := time.Now()
	res, err := s.classifier.Classify(ctx, job.FilePath)
	inferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.fail(ctx, log, job, fmt.Errorf("classify: %w", err))
		return
	}

	row := models.Prediction{
		UserID:         job.UserID,
		ImagePath:      job.FilePath,
		PredictedClass: res.Label,
		Confidence:     res.Confidence,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.fail(ctx, log, job, fmt.Errorf("store prediction: %w", err))
		return
	}
	if job.UserID != nil {
		utils.InvalidateHistory(*job.UserID)
	}

	cure := classifier.Remedy(res.Label)
	payload := Result{
		Prediction:   res.Label,
		Confidence:   res.Confidence,
		PredictionID: row.ID,
		Status:       StatusCompleted,
		SessionID:    job.SessionID,
		Cure:         cure.EN,
		CureSI:       cure.SI,
		CureTA:       cure.TA,
	}
	jobsTotal.WithLabelValues(StatusCompleted).Inc()
	log.Infow("prediction completed", "prediction_id", row.ID, "label", res.Label, "confidence", res.Confidence)
	s.publish(ctx, log, job.SessionID, payload)
}

func (s *PredictionService) fail(ctx context.Context, log *zap.SugaredLogger, job PredictionJob, err error) {
	jobsTotal.WithLabelValues(StatusFailed).Inc()
	log.Errorw("prediction failed", "error", err)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "prediction")
		scope.SetExtra("session_id", job.SessionID)
		sentry.CaptureException(err)
	})
	s.publish(ctx, log, job.SessionID, Failure{Error: err.Error(), Status: StatusFailed, SessionID: job.SessionID})
}

func (s *PredictionService) publish(ctx context.Context, log *zap.SugaredLogger, room string, payload interface{}) {
	if room == "" || s.publisher == nil {
		return
	}
	// the job context may already be cancelled during shutdown; delivery should still be attempted
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pctx, room, realtime.EventPredictionResult, payload); err != nil {
		log.Warnw("push result failed", "error", err)
	}
}

func (s *PredictionService) removeUpload(log *zap.SugaredLogger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnw("remove upload failed", "error", err)
	}
}
