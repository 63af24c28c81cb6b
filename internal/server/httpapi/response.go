package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	msgInternal       = "Internal Server Error"
	msgMalformedBody  = "Malformed request body"
	msgNotLoggedIn    = "User is not logged in"
	msgInvalidToken   = "Invalid token"
	msgUserNotFound   = "User not found"
	msgBadCredentials = "Email or password does not match. Please try again"
)

const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string            `json:"message"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeValidation reports field level problems when err carries them.
func writeValidation(w http.ResponseWriter, msg string, err error) {
	resp := messageResponse{Message: msg}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		resp.Errors = verrs
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}
