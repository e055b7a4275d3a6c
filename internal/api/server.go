package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/id"
	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const recordTimeout = 5 * time.Second

// Recorder receives a summary of every pipeline run after the response is written.
type Recorder interface {
	Record(ctx context.Context, rec domain.TranscodeRecord) error
}

// RecordReader is implemented by record sinks that can list what they stored.
type RecordReader interface {
	Recent(ctx context.Context, limit int) ([]domain.TranscodeRecord, error)
}

type Options struct {
	Pipeline    pipeline.Options
	Recorder    Recorder
	RateLimiter RateLimiter
}

type Server struct {
	logger      *log.Logger
	processor   *pipeline.Processor
	recorder    Recorder
	rateLimiter RateLimiter
	metrics     *metrics
	tracer      trace.Tracer
	router      *mux.Router
	now         func() time.Time
}

func NewServer(logger *log.Logger, fetcher pipeline.Fetcher, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	m := newMetrics()
	pipelineOpts := opts.Pipeline
	pipelineOpts.Observer = m

	s := &Server{
		logger:      logger,
		processor:   pipeline.NewProcessor(logger, fetcher, pipelineOpts),
		recorder:    opts.Recorder,
		rateLimiter: opts.RateLimiter,
		metrics:     m,
		tracer:      otel.Tracer("pixelproxy/api"),
		router:      mux.NewRouter(),
		now:         time.Now,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return withRequestID(s.withTracing(s.metrics.withHTTPMetrics(s.router)))
}

// MetricsHandler serves Prometheus metrics and, when the record sink can be
// read back, the most recent records. It belongs on a private listener.
func (s *Server) MetricsHandler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", s.metrics.metricsHandler()).Methods(http.MethodGet)
	if reader, ok := s.recorder.(RecordReader); ok {
		r.HandleFunc("/records", s.handleRecentRecords(reader)).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) routes() {
	// Paths are matched as sent; cleaning would turn odd paths into redirects.
	s.router.SkipClean(true)
	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(notFound)

	s.router.HandleFunc(pipeline.HealthCheckPath, s.handleHealthCheck).Methods(http.MethodGet)
	s.router.PathPrefix("/").HandlerFunc(s.handleTranscode).Methods(http.MethodGet)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTranscode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Only well-formed transcode requests spend tokens; everything else is a 404.
	if s.rateLimiter != nil {
		if _, err := pipeline.ParseRequest(r.URL.Path, r.URL.RawQuery); err == nil && !s.admit(w, r) {
			return
		}
	}

	out := s.processor.Process(ctx, r.URL.Path, r.URL.RawQuery)
	if err := s.processor.Respond(w, &out); err == nil {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	s.metrics.observeOutcome(out)
	s.record(ctx, r, out)
}

func (s *Server) record(ctx context.Context, r *http.Request, out pipeline.Outcome) {
	if s.recorder == nil {
		return
	}

	rec := newRecord(r, out, s.now().UTC())
	rec.RequestID = id.FromContext(ctx)

	// The client may already be gone; the record should still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.recorder.Record(ctx, rec); err != nil {
		s.metrics.recordFailures.Inc()
		s.logger.Printf("transcode record failed request_id=%s err=%v", rec.RequestID, err)
	}
}

func newRecord(r *http.Request, out pipeline.Outcome, now time.Time) domain.TranscodeRecord {
	rec := domain.TranscodeRecord{
		Method:      r.Method,
		Path:        r.URL.Path,
		Outcome:     domain.OutcomeResponded,
		Status:      out.Status,
		SourceBytes: int64(out.SourceBytes),
		OutputBytes: int64(out.OutputBytes),
		DurationMS:  out.Duration.Milliseconds(),
		CreatedAt:   now,
	}
	if out.Request.SourceURL != nil {
		rec.SourceURL = out.Request.SourceURL.Redacted()
		rec.Format = string(out.Request.OutputFormat)
		rec.Width = int(out.Request.Width)
		rec.Height = int(out.Request.Height)
	}
	if out.State == pipeline.StateFailed {
		rec.Outcome = domain.OutcomeFailed
		rec.FailedStage = out.FailedAt.String()
		if out.Kind != 0 {
			rec.Kind = out.Kind.String()
		}
	}
	return rec
}

func (s *Server) handleRecentRecords(reader RecordReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		records, err := reader.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Printf("list transcode records failed err=%v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list records"})
			return
		}
		if records == nil {
			records = []domain.TranscodeRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
