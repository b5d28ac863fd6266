package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/webopt/internal/domain"
)

const TypeOptimizeImage = "image:optimize"

// OptimizeImagePayload carries everything a worker needs to optimize one file
// of a distributed batch.
type OptimizeImagePayload struct {
	BatchID       string    `json:"batch_id"`
	Name          string    `json:"name"`
	InputPath     string    `json:"input_path"`
	Output        string    `json:"output"`
	MaxResolution int       `json:"max_resolution"`
	Quality       int       `json:"quality"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

func (p OptimizeImagePayload) Params() domain.TransformParams {
	return domain.TransformParams{MaxResolution: p.MaxResolution, Quality: p.Quality}
}

func (p OptimizeImagePayload) validate() error {
	if strings.TrimSpace(p.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", domain.ErrInvalidParameter)
	}
	if strings.TrimSpace(p.InputPath) == "" {
		return fmt.Errorf("%w: input path is required", domain.ErrInvalidParameter)
	}
	if strings.TrimSpace(p.Output) == "" {
		return fmt.Errorf("%w: output is required", domain.ErrInvalidParameter)
	}
	return p.Params().Validate()
}

func NewOptimizeImageTask(payload OptimizeImagePayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal optimize payload: %w", err)
	}
	return asynq.NewTask(TypeOptimizeImage, body), nil
}

func ParseOptimizeImagePayload(task *asynq.Task) (OptimizeImagePayload, error) {
	var payload OptimizeImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OptimizeImagePayload{}, fmt.Errorf("unmarshal optimize payload: %w", err)
	}
	return payload, nil
}
