package pipeline

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/id"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type State int

const (
	StateReceived State = iota
	StateParsed
	StateFetched
	StateDecoded
	StateResized
	StateEncoded
	StateResponded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateParsed:
		return "parsed"
	case StateFetched:
		return "fetched"
	case StateDecoded:
		return "decoded"
	case StateResized:
		return "resized"
	case StateEncoded:
		return "encoded"
	case StateResponded:
		return "responded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one pipeline run. On success State is
// StateEncoded until Respond has written the body.
type Outcome struct {
	State       State
	FailedAt    State
	Kind        Kind
	Status      int
	ContentType string
	Body        []byte
	Err         error
	Request     domain.TranscodeRequest
	SourceBytes int
	OutputBytes int
	Duration    time.Duration
}

// StageObserver receives the duration of every stage that ran. kind is zero
// for stages that succeeded.
type StageObserver interface {
	ObserveStage(stage State, kind Kind, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(State, Kind, time.Duration) {}

type Options struct {
	Codec    CodecOptions
	Policy   StatusPolicy
	Observer StageObserver
}

type Processor struct {
	logger   *log.Logger
	fetcher  Fetcher
	codec    Codec
	policy   StatusPolicy
	observer StageObserver
	tracer   trace.Tracer
}

func NewProcessor(logger *log.Logger, fetcher Fetcher, opts Options) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Processor{
		logger:   logger,
		fetcher:  fetcher,
		codec:    newCodec(opts.Codec),
		policy:   opts.Policy,
		observer: observer,
		tracer:   otel.Tracer("pixelproxy/pipeline"),
	}
}

// Process runs parse, fetch, decode, resize and encode in order and stops at
// the first failure. It never writes to a response.
func (p *Processor) Process(ctx context.Context, path, rawQuery string) Outcome {
	startedAt := time.Now()
	out := Outcome{State: StateReceived}

	ctx, span := p.tracer.Start(ctx, "pipeline.transcode")
	defer span.End()
	defer func() {
		out.Duration = time.Since(startedAt)
	}()

	var req domain.TranscodeRequest
	err := p.stage(ctx, StateParsed, func(context.Context) error {
		var err error
		req, err = ParseRequest(path, rawQuery)
		return err
	})
	if err != nil {
		return p.fail(ctx, span, out, StateParsed, err, path)
	}
	out.Request = req
	out.State = StateParsed
	span.SetAttributes(
		attribute.String("transcode.format", string(req.OutputFormat)),
		attribute.Int("transcode.width", int(req.Width)),
		attribute.Int("transcode.height", int(req.Height)),
		attribute.String("transcode.source_scheme", req.SourceURL.Scheme),
	)

	var src domain.SourceImage
	err = p.stage(ctx, StateFetched, func(ctx context.Context) error {
		var err error
		src, err = p.fetcher.Fetch(ctx, req.SourceURL)
		return err
	})
	if err != nil {
		return p.fail(ctx, span, out, StateFetched, err, path)
	}
	out.SourceBytes = len(src.Data)
	out.State = StateFetched

	var buf PixelBuffer
	err = p.stage(ctx, StateDecoded, func(ctx context.Context) error {
		var err error
		buf, err = p.codec.Decode(ctx, src)
		return err
	})
	src.Data = nil
	if err != nil {
		return p.fail(ctx, span, out, StateDecoded, err, path)
	}
	out.State = StateDecoded

	_ = p.stage(ctx, StateResized, func(context.Context) error {
		buf = p.codec.Resize(buf, int(req.Width), int(req.Height))
		return nil
	})
	out.State = StateResized

	var encoded []byte
	err = p.stage(ctx, StateEncoded, func(context.Context) error {
		var err error
		encoded, err = p.codec.Encode(buf, req.OutputFormat)
		return err
	})
	if err != nil {
		return p.fail(ctx, span, out, StateEncoded, err, path)
	}

	out.State = StateEncoded
	out.Status = http.StatusOK
	out.ContentType = req.OutputFormat.ContentType()
	out.Body = encoded
	out.OutputBytes = len(encoded)
	span.SetStatus(codes.Ok, "encoded")
	return out
}

func (p *Processor) stage(ctx context.Context, stage State, fn func(context.Context) error) error {
	startedAt := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline."+stage.String())
	defer span.End()

	err := fn(ctx)
	p.observer.ObserveStage(stage, KindOf(err), time.Since(startedAt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
	}
	return err
}

func (p *Processor) fail(ctx context.Context, span trace.Span, out Outcome, stage State, err error, path string) Outcome {
	kind := KindOf(err)
	if kind == 0 {
		kind = kindForStage(stage)
		err = newError(kind, err)
	}

	out.State = StateFailed
	out.FailedAt = stage
	out.Kind = kind
	out.Status = p.policy.Status(kind)
	out.Err = err

	span.SetStatus(codes.Error, kind.String())
	span.SetAttributes(
		attribute.String("transcode.failed_stage", stage.String()),
		attribute.String("transcode.kind", kind.String()),
	)

	src := ""
	if out.Request.SourceURL != nil {
		src = out.Request.SourceURL.Redacted()
	}
	p.logger.Printf(
		"transcode failed request_id=%s stage=%s kind=%s status=%d path=%q src=%q err=%v",
		id.FromContext(ctx),
		stage,
		kind,
		out.Status,
		path,
		src,
		err,
	)
	return out
}

func kindForStage(stage State) Kind {
	switch stage {
	case StateParsed:
		return KindParse
	case StateFetched:
		return KindUnreachable
	case StateDecoded:
		return KindDecode
	default:
		return KindEncode
	}
}

// Respond writes the outcome to w. Failures get their mapped status and an
// empty body; a successful outcome moves to StateResponded once the body is written.
func (p *Processor) Respond(w http.ResponseWriter, out *Outcome) error {
	if out.State != StateEncoded {
		status := out.Status
		if status == 0 {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		return nil
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.WriteHeader(http.StatusOK)

	body := out.Body
	out.Body = nil
	if _, err := w.Write(body); err != nil {
		out.State = StateFailed
		out.FailedAt = StateResponded
		out.Err = err
		p.logger.Printf("response write failed format=%s bytes=%d err=%v", out.Request.OutputFormat, len(body), err)
		return err
	}

	out.State = StateResponded
	return nil
}
