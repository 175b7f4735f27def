// Package dispatcher makes the single outbound call that starts a generation.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/extract"
	"github.com/georgeshao/genstudio/internal/telemetry"
	"github.com/georgeshao/genstudio/pkg/types"
)

type Transport interface {
	PostJSON(ctx context.Context, cred config.Credential, path string, payload any) (extract.Node, error)
}

// Request is one validated unit of work: a single output of a batch.
type Request struct {
	Model       *catalog.Model
	Prompt      string
	AspectRatio string
	Resolution  string
	Duration    int
	References  []types.ReferenceImage
}

// Outcome carries exactly one of MediaURL (finished synchronously) or JobID
// (to be polled).
type Outcome struct {
	MediaURL string
	JobID    string
}

type Dispatcher struct {
	transport Transport
	tracer    trace.Tracer
	logger    *slog.Logger
}

func New(transport Transport, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		tracer:    telemetry.Tracer(),
		logger:    logger,
	}
}

// Validate rejects requests that must not reach the network.
func Validate(req Request) error {
	if req.Model == nil {
		return fmt.Errorf("%w: unknown model", ErrValidation)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrValidation)
	}
	if len(req.References) > req.Model.MaxReferences {
		return fmt.Errorf("%w: %s accepts at most %d reference images", ErrValidation, req.Model.Name, req.Model.MaxReferences)
	}
	if req.AspectRatio != "" && !req.Model.SupportsRatio(req.AspectRatio) {
		return fmt.Errorf("%w: %s does not support aspect ratio %s", ErrValidation, req.Model.Name, req.AspectRatio)
	}
	return nil
}

// Dispatch performs the one outbound call that starts a generation. It has
// no side effects beyond that call; the caller owns the record.
func (d *Dispatcher) Dispatch(ctx context.Context, cred config.Credential, req Request) (Outcome, error) {
	if err := Validate(req); err != nil {
		return Outcome{}, err
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.Dispatch", trace.WithAttributes(
		attribute.String("model_id", req.Model.ID),
		attribute.String("endpoint", string(req.Model.Endpoint)),
		attribute.Int("references", len(req.References)),
	))
	defer span.End()

	var (
		out Outcome
		err error
	)
	switch req.Model.Endpoint {
	case catalog.EndpointChat:
		out, err = d.complete(ctx, cred, req)
	case catalog.EndpointImageJob:
		out, err = d.createJob(ctx, cred, req, buildOmniImagePayload(req))
	case catalog.EndpointVideoJob:
		out, err = d.createJob(ctx, cred, req, buildVideoPayload(req))
	default:
		err = fmt.Errorf("%w: unsupported endpoint %q", ErrValidation, req.Model.Endpoint)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("dispatch failed", "model_id", req.Model.ID, "error", err)
		return Outcome{}, err
	}
	return out, nil
}

func (d *Dispatcher) complete(ctx context.Context, cred config.Credential, req Request) (Outcome, error) {
	body, err := d.transport.PostJSON(ctx, cred, req.Model.CreatePath, buildChatPayload(req))
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	mediaURL, ok := extract.FromChatCompletion(body)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: could not locate an image in the API response, check the key balance or the prompt", ErrExtraction)
	}

	d.logger.Debug("image completed synchronously", "model_id", req.Model.ID)
	return Outcome{MediaURL: mediaURL}, nil
}

func (d *Dispatcher) createJob(ctx context.Context, cred config.Credential, req Request, payload any) (Outcome, error) {
	body, err := d.transport.PostJSON(ctx, cred, req.Model.CreatePath, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	jobID := body.FirstText(req.Model.JobIDFields...)
	if jobID == "" {
		return Outcome{}, fmt.Errorf("%w: the API returned no task id, check the key and configuration", ErrMissingJobID)
	}

	d.logger.Info("job accepted", "model_id", req.Model.ID, "task_id", jobID)
	return Outcome{JobID: jobID}, nil
}
