package webapp

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error string `json:"error"`
}

// HandleAPIResponse writes resp as JSON with status, or err as a JSON error
// body with status when err is set.
func HandleAPIResponse(w http.ResponseWriter, r *http.Request, entry *logrus.Entry, resp any, err error, status int) {
	if err != nil {
		entry.WithFields(logrus.Fields{
			"remote": r.RemoteAddr,
			"method": r.Method,
			"path":   r.URL.Path,
			"status": status,
		}).WithError(err).Warn("Request failed")
		resp = errorResponse{Error: err.Error()}
	}
	body, merr := json.Marshal(resp)
	if merr != nil {
		entry.WithError(merr).WithField("path", r.URL.Path).Error("Failed to encode response")
		http.Error(w, merr.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
