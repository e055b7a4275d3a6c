package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeRecordTranscode = "transcode:record"

func NewRecordTask(rec domain.TranscodeRecord) (*asynq.Task, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record payload: %w", err)
	}
	return asynq.NewTask(TypeRecordTranscode, body), nil
}

func ParseRecordPayload(task *asynq.Task) (domain.TranscodeRecord, error) {
	var rec domain.TranscodeRecord
	if err := json.Unmarshal(task.Payload(), &rec); err != nil {
		return domain.TranscodeRecord{}, fmt.Errorf("unmarshal record payload: %w", err)
	}
	if strings.TrimSpace(rec.RequestID) == "" || rec.Outcome == "" {
		return domain.TranscodeRecord{}, fmt.Errorf("record payload is missing request_id or outcome")
	}
	return rec, nil
}
