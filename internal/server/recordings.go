package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/craftai-co-in/superflow/internal/auth"
	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/plans"
	"github.com/craftai-co-in/superflow/internal/recording"
	"github.com/craftai-co-in/superflow/internal/store"
	"github.com/craftai-co-in/superflow/internal/voice"
)

const (
	// 30 minutes of compressed speech fits well under this.
	maxUploadBytes     = 50 << 20
	multipartMemory    = 8 << 20
	defaultListLimit   = 50
	idempotencyKeyHead = "Idempotency-Key"
)

type recordingResponse struct {
	Recording        *store.Recording `json:"recording"`
	MinutesCharged   int64            `json:"minutes_charged"`
	MinutesRemaining plans.Minutes    `json:"minutes_remaining"`
	Duplicate        bool             `json:"duplicate,omitempty"`
}

func (d *Deps) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorCode(w, http.StatusRequestEntityTooLarge, internalerrors.KindValidation, "audio upload is too large")
			return
		}
		d.writeError(w, r, internalerrors.Validation("record", "expected a multipart form with an audio file"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("audio")
	if err != nil {
		d.writeError(w, r, internalerrors.Validation("record", "audio file is required"))
		return
	}
	defer file.Close()

	seconds, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("duration_seconds")), 10, 64)
	if err != nil {
		d.writeError(w, r, internalerrors.Validation("record", "duration_seconds must be an integer"))
		return
	}
	style, err := voice.ParseStyle(r.FormValue("style"))
	if err != nil {
		d.writeError(w, r, internalerrors.Validation("record", "%v", err))
		return
	}
	requestID := strings.TrimSpace(r.FormValue("request_id"))
	if requestID == "" {
		requestID = strings.TrimSpace(r.Header.Get(idempotencyKeyHead))
	}

	res, err := d.Recordings.Process(r.Context(), recording.Request{
		UserID:          u.ID,
		Audio:           file,
		Filename:        header.Filename,
		DurationSeconds: seconds,
		Style:           style,
		RequestID:       requestID,
	})
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, recordingResponse{
		Recording:        res.Recording,
		MinutesCharged:   res.MinutesCharged,
		MinutesRemaining: res.MinutesRemaining,
		Duplicate:        res.Duplicate,
	})
}

func (d *Deps) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	recs, err := d.Recordings.List(r.Context(), u.ID, defaultListLimit)
	if err != nil {
		d.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*store.Recording{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": recs, "count": len(recs)})
}

func (d *Deps) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFrom(r.Context())
	if err := d.Recordings.Delete(r.Context(), u.ID, r.PathValue("id")); err != nil {
		d.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
