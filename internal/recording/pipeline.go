// Package recording runs a voice clip through the metered
// transcribe-and-enhance pipeline and stores the result.
package recording

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/craftai-co-in/superflow/internal/billing"
	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/metrics"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/store"
	"github.com/craftai-co-in/superflow/internal/voice"
)

// MaxDuration caps a single clip.
const MaxDuration = 30 * time.Minute

// Request is one uploaded clip.
type Request struct {
	UserID          int64
	Audio           io.Reader
	Filename        string
	DurationSeconds int64
	Style           voice.Style
	// RequestID is a client-chosen idempotency key. Retrying with the same
	// key charges once and returns the first result.
	RequestID string
}

// Result is the stored recording and the balance after charging.
type Result struct {
	Recording        *store.Recording
	MinutesCharged   int64
	MinutesRemaining plans.Minutes
	Duplicate        bool
}

// Pipeline wires metering around the voice provider.
type Pipeline struct {
	store    *store.Store
	meter    *billing.Meter
	provider voice.Provider
}

// NewPipeline creates a Pipeline.
func NewPipeline(s *store.Store, meter *billing.Meter, provider voice.Provider) *Pipeline {
	return &Pipeline{store: s, meter: meter, provider: provider}
}

// Process checks the balance, transcribes, enhances, charges and saves. No
// minutes are charged when transcription or enhancement fails.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	if req.DurationSeconds <= 0 {
		return nil, internalerrors.Validation("record", "duration_seconds must be positive")
	}
	if time.Duration(req.DurationSeconds)*time.Second > MaxDuration {
		return nil, internalerrors.Validation("record", "recording exceeds %s", MaxDuration)
	}
	if req.Audio == nil {
		return nil, internalerrors.Validation("record", "audio is required")
	}
	if req.Style == "" {
		req.Style = voice.StyleClean
	}

	if req.RequestID != "" {
		if res, err := p.replay(ctx, req); res != nil || err != nil {
			return res, err
		}
	}

	if _, err := p.meter.CheckBalance(ctx, req.UserID); err != nil {
		outcome(err)
		return nil, err
	}

	transcript, err := p.provider.Transcribe(ctx, req.Audio, req.Filename)
	if err != nil {
		outcome(err)
		return nil, fmt.Errorf("transcribe recording: %w", err)
	}
	enhanced, err := p.provider.Enhance(ctx, transcript, req.Style)
	if err != nil {
		outcome(err)
		return nil, fmt.Errorf("enhance transcript: %w", err)
	}

	charge, err := p.meter.Deduct(ctx, req.UserID, req.DurationSeconds, req.RequestID)
	if err != nil {
		outcome(err)
		return nil, err
	}

	rec := &store.Recording{
		ID:              charge.UsageRecordID,
		UserID:          req.UserID,
		DurationSeconds: req.DurationSeconds,
		Style:           string(req.Style),
		Transcript:      transcript,
		Enhanced:        enhanced,
	}
	if err := p.store.CreateRecording(ctx, rec); err != nil {
		if charge.Duplicate {
			// A concurrent retry with the same key charged and saved first.
			if res, rerr := p.replay(ctx, req); rerr == nil && res != nil {
				return res, nil
			}
		}
		outcome(err)
		return nil, fmt.Errorf("save recording: %w", err)
	}

	metrics.RecordingsTotal.WithLabelValues("processed").Inc()
	log.Info().
		Int64("user_id", req.UserID).
		Str("recording_id", rec.ID).
		Str("style", rec.Style).
		Int64("minutes_charged", charge.MinutesCharged).
		Msg("Recording processed")

	res := &Result{Recording: rec, MinutesCharged: charge.MinutesCharged, Duplicate: charge.Duplicate}
	if charge.User != nil {
		res.MinutesRemaining = charge.User.MinutesRemaining
	}
	return res, nil
}

// replay returns the stored result for an already charged request id, or nil
// when the id has not been used yet.
func (p *Pipeline) replay(ctx context.Context, req Request) (*Result, error) {
	prior, err := p.store.GetUsageByRequestID(ctx, req.UserID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("look up request %q: %w", req.RequestID, err)
	}
	if prior == nil {
		return nil, nil
	}
	rec, err := p.store.GetRecording(ctx, prior.ID)
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", prior.ID, err)
	}
	if rec == nil {
		// Charged but the save did not complete; let the caller store it.
		return nil, nil
	}
	u, err := p.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	metrics.RecordingsTotal.WithLabelValues("duplicate").Inc()
	res := &Result{Recording: rec, MinutesCharged: prior.MinutesCharged, Duplicate: true}
	if u != nil {
		res.MinutesRemaining = u.MinutesRemaining
	}
	return res, nil
}

func outcome(err error) {
	switch internalerrors.KindOf(err) {
	case internalerrors.KindUsageLimitExceeded:
		metrics.RecordingsTotal.WithLabelValues("limit_exceeded").Inc()
	case internalerrors.KindUpload:
		metrics.RecordingsTotal.WithLabelValues("provider_error").Inc()
	default:
		metrics.RecordingsTotal.WithLabelValues("error").Inc()
	}
}

// List returns a user's recordings, newest first.
func (p *Pipeline) List(ctx context.Context, userID int64, limit int) ([]*store.Recording, error) {
	return p.store.ListRecordings(ctx, userID, limit)
}

// Delete removes one of the user's recordings.
func (p *Pipeline) Delete(ctx context.Context, userID int64, id string) error {
	ok, err := p.store.DeleteRecording(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return internalerrors.NotFound("delete_recording", id)
	}
	return nil
}
