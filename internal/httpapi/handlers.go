package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message    string `json:"message"`
	TempUserID string `json:"tempUserId"`
}

// passcode accepts the OTP as a JSON string or a JSON number.
type passcode string

func (p *passcode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = passcode(s)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("otp must be a string or a number")
	}
	*p = passcode(strconv.FormatUint(n, 10))
	return nil
}

type verifyOTPRequest struct {
	TempUserID string   `json:"tempUserId"`
	OTP        passcode `json:"otp"`
}

type sessionUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type verifyOTPResponse struct {
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expiresAt"`
	User      sessionUser `json:"user"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// updateUserRequest fields left empty keep their current value.
type updateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type accountResponse struct {
	Message string  `json:"message"`
	User    account `json:"user"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "readiness check failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "message": msgServiceNotAvailable})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	pendingID, err := h.service.Login(r.Context(), req.Email, req.Password, "")
	if err != nil {
		h.fail(r.Context(), w, "login", err, subjectOTP)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message:    "OTP sent to your email. Verify to complete login.",
		TempUserID: pendingID,
	})
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgInvalidOTP)
		return
	}

	res, err := h.service.VerifyOTP(r.Context(), req.TempUserID, string(req.OTP))
	if err != nil {
		h.fail(r.Context(), w, "verify_otp", err, subjectOTP)
		return
	}

	writeJSON(w, http.StatusOK, verifyOTPResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.Unix(),
		User: sessionUser{
			ID:   res.AccountID,
			Name: res.Name,
			Role: string(res.Role),
		},
	})
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email, ""); err != nil {
		h.fail(r.Context(), w, "request_password_reset", err, subjectResetLink)
		return
	}

	writeMessage(w, http.StatusOK, "If that email is registered, a password reset link has been sent")
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		h.fail(r.Context(), w, "reset_password", err, subjectResetLink)
		return
	}

	writeMessage(w, http.StatusOK, "Password has been reset successfully")
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	acct, err := h.service.Register(r.Context(), teamgate.NewAccountInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.fail(r.Context(), w, "register", err, "")
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{Message: "User registered", User: accountView(acct)})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "list_users", err, "")
		return
	}

	out := make([]account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountView(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, msgMalformedBody)
		return
	}

	var update teamgate.AccountUpdate
	if strings.TrimSpace(req.Name) != "" {
		update.Name = &req.Name
	}
	if strings.TrimSpace(req.Email) != "" {
		update.Email = &req.Email
	}
	if strings.TrimSpace(req.Role) != "" {
		role, err := teamgate.ParseRole(req.Role)
		if err != nil {
			h.fail(r.Context(), w, "update_user", err, "")
			return
		}
		update.Role = &role
	}

	acct, err := h.service.UpdateAccount(r.Context(), chi.URLParam(r, "userId"), update)
	if err != nil {
		h.fail(r.Context(), w, "update_user", err, "")
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{Message: "User updated successfully", User: accountView(acct)})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeMessage(w, http.StatusForbidden, "access denied: no token provided")
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.fail(r.Context(), w, "logout", err, "")
		return
	}

	writeMessage(w, http.StatusOK, "Logged out")
}
