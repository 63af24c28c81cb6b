package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/otpauth/internal/common"
	"github.com/dmitrijs2005/otpauth/internal/server/services"
)

type verifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "UP", Timestamp: s.now().UTC().Format(time.RFC3339)})
}

func (s *HTTPServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.SignupInput
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	err := s.accounts.Signup(ctx, req)
	switch {
	case err == nil:
		writeMessage(w, http.StatusCreated, "Signup successful. Please verify the OTP sent to your email.")
	case errors.Is(err, common.ErrValidation):
		writeValidation(w, "Email, username, and password are required", err)
	case errors.Is(err, common.ErrAlreadyExists):
		writeMessage(w, http.StatusConflict, "User with provided email already exists")
	default:
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

func (s *HTTPServer) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	token, exp, err := s.accounts.VerifyOTP(ctx, req.Email, req.OTP)
	switch {
	case err == nil:
		s.setSessionCookie(w, token, exp)
		writeMessage(w, http.StatusOK, "Email verified successfully")
	case errors.Is(err, common.ErrValidation):
		writeValidation(w, "Email and OTP are required", err)
	case errors.Is(err, common.ErrOTPExpired):
		writeMessage(w, http.StatusBadRequest, "OTP expired or not found")
	case errors.Is(err, common.ErrInvalidOTP):
		writeMessage(w, http.StatusBadRequest, "Invalid OTP")
	case errors.Is(err, common.ErrorNotFound):
		writeMessage(w, http.StatusNotFound, msgUserNotFound)
	default:
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	token, exp, err := s.accounts.Login(ctx, req.Email, req.Password)
	switch {
	case err == nil:
		s.setSessionCookie(w, token, exp)
		writeMessage(w, http.StatusCreated, "Login successful")
	case errors.Is(err, common.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, msgBadCredentials)
	default:
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

func (s *HTTPServer) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := sessionToken(r)
	if token == "" {
		writeMessage(w, http.StatusUnauthorized, msgNotLoggedIn)
		return
	}

	profile, err := s.accounts.CurrentUser(ctx, token)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, profile)
	case errors.Is(err, common.ErrUnauthenticated):
		s.logger.Debug(ctx, "rejected session token", "error", err)
		writeMessage(w, http.StatusUnauthorized, msgInvalidToken)
	case errors.Is(err, common.ErrorNotFound):
		writeMessage(w, http.StatusNotFound, msgUserNotFound)
	default:
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := s.accounts.Logout(ctx, sessionToken(r))
	switch {
	case err == nil:
		s.clearSessionCookie(w)
		writeMessage(w, http.StatusOK, "Logged out successfully")
	case errors.Is(err, common.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, "Not logged in")
	default:
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}
