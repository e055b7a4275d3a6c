package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/hibiken/asynq"
)

func TestRecordTaskRoundTrip(t *testing.T) {
	rec := domain.TranscodeRecord{
		RequestID:   "req-123",
		Method:      "GET",
		Path:        "/jpg/200/100/",
		SourceURL:   "http://example.com/a.png",
		Format:      "jpeg",
		Width:       200,
		Height:      100,
		Outcome:     domain.OutcomeFailed,
		FailedStage: "decoded",
		Kind:        "decode",
		Status:      404,
		SourceBytes: 77,
		DurationMS:  3,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	task, err := NewRecordTask(rec)
	if err != nil {
		t.Fatalf("NewRecordTask returned error: %v", err)
	}
	if task.Type() != TypeRecordTranscode {
		t.Fatalf("expected task type %q, got %q", TypeRecordTranscode, task.Type())
	}

	parsed, err := ParseRecordPayload(task)
	if err != nil {
		t.Fatalf("ParseRecordPayload returned error: %v", err)
	}
	if parsed != rec {
		t.Fatalf("expected %+v, got %+v", rec, parsed)
	}
}

func TestParseRecordPayloadRejectsMalformed(t *testing.T) {
	for _, body := range []string{"{", `{"outcome":"responded"}`, `{"request_id":"req-1"}`} {
		task := asynq.NewTask(TypeRecordTranscode, []byte(body))
		if _, err := ParseRecordPayload(task); err == nil {
			t.Fatalf("expected error for payload %s", body)
		}
	}
}
