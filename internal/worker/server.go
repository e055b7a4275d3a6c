package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/pixelproxy/internal/config"
	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/queue"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type recordWriter interface {
	Record(ctx context.Context, rec domain.TranscodeRecord) error
}

// Server drains transcode records from the queue into a record store.
type Server struct {
	logger  *log.Logger
	server  *asynq.Server
	store   recordWriter
	metrics *metrics
	tracer  trace.Tracer
}

func NewServer(
	logger *log.Logger,
	redisCfg config.RedisConfig,
	recordsCfg config.RecordsConfig,
	workerCfg config.WorkerConfig,
	store recordWriter,
) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if !redisCfg.Enabled() {
		return nil, fmt.Errorf("redis address is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			redisCfg.AsynqClientOpt(),
			asynq.Config{
				Concurrency: max(1, workerCfg.Concurrency),
				Queues: map[string]int{
					recordsCfg.Queue: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		store:   store,
		metrics: newMetrics(),
		tracer:  otel.Tracer("pixelproxy/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRecordTranscode, s.handleRecord)
	return mux
}

func (s *Server) handleRecord(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	result := "failed"
	defer func() {
		s.metrics.recordsTotal.WithLabelValues(result).Inc()
		s.metrics.writeDuration.Observe(time.Since(startedAt).Seconds())
	}()

	rec, err := queue.ParseRecordPayload(task)
	if err != nil {
		result = "malformed"
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.record_transcode", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("request.id", rec.RequestID),
		attribute.String("transcode.outcome", rec.Outcome),
		attribute.Int("http.status_code", rec.Status),
	)
	defer span.End()

	if err := s.store.Record(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record write failed")
		return fmt.Errorf("write record request_id=%s: %w", rec.RequestID, err)
	}

	result = "stored"
	s.metrics.outcomesTotal.WithLabelValues(rec.Outcome, rec.Kind).Inc()
	s.metrics.outputBytesTotal.Add(float64(rec.OutputBytes))
	span.SetStatus(codes.Ok, "stored")
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
