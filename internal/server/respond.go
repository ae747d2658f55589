package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	internalerrors "github.com/craftai-co-in/superflow/internal/errors"
	"github.com/craftai-co-in/superflow/internal/logging"
)

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	UpgradeURL string `json:"upgrade_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, kind internalerrors.Kind, message string) {
	writeJSON(w, status, errorResponse{Error: string(kind), Message: message})
}

// writeError maps err onto the error taxonomy. Internal errors are logged and
// their detail is withheld from the client.
func (d *Deps) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := internalerrors.KindOf(err)
	status := internalerrors.HTTPStatus(err)
	resp := errorResponse{Error: string(kind), Message: publicMessage(err)}

	switch kind {
	case internalerrors.KindUsageLimitExceeded:
		resp.UpgradeURL = d.Router.UpgradeURL()
	case internalerrors.KindInternal:
		logging.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		resp.Message = "internal error"
	case internalerrors.KindGateway, internalerrors.KindUpload:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream call failed")
	}
	writeJSON(w, status, resp)
}

func publicMessage(err error) string {
	var appErr *internalerrors.Error
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
		return string(appErr.Kind)
	}
	return err.Error()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return internalerrors.Validation("decode_request", "invalid JSON body")
	}
	return nil
}
