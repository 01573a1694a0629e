// Package api exposes the passcode vault and session gate to a UI shell over
// a loopback HTTP surface. The API is the host-process boundary of the lock
// subsystem; it never serves beyond the local machine.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/finsync/gatekeeper/gate"
	"github.com/finsync/gatekeeper/passcode"
)

// API wires the vault and gate controller to HTTP handlers.
type API struct {
	vault    *passcode.Vault
	ctrl     *gate.Controller
	auth     *gate.StoredAuth
	log      zerolog.Logger
	deviceID string
}

// Option customizes the API.
type Option func(*API)

// WithLogger sets the request/error logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *API) {
		a.log = log
	}
}

// WithStoredAuth lets sign-in/out requests persist the identity so it
// survives an agent restart.
func WithStoredAuth(auth *gate.StoredAuth) Option {
	return func(a *API) {
		a.auth = auth
	}
}

// WithDeviceID includes the device install identifier in status responses.
func WithDeviceID(id string) Option {
	return func(a *API) {
		a.deviceID = id
	}
}

// New creates an API over the given vault and gate controller.
func New(vault *passcode.Vault, ctrl *gate.Controller, opts ...Option) *API {
	a := &API{
		vault: vault,
		ctrl:  ctrl,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the versioned route tree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger(a.log))

	r.Get("/status", a.handleStatus)

	r.Put("/pin", a.handleSetPin)
	r.Post("/pin/verify", a.handleVerifyPin)
	r.Delete("/pin", a.handleClearPin)

	r.Post("/onboarding/complete", a.handleCompleteOnboarding)

	r.Put("/user", a.handleSignIn)
	r.Delete("/user", a.handleSignOut)

	r.Post("/lock", a.handleLock)
	r.Put("/biometrics", a.handleSetBiometrics)
	r.Post("/biometrics/complete", a.handleCompleteBiometrics)

	r.Post("/background", a.handleBackground)
	r.Post("/foreground", a.handleForeground)

	return r
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	set, err := a.vault.IsSet(ctx)
	if err != nil {
		a.internalError(w, err)
		return
	}
	length := 0
	if set {
		if length, err = a.vault.Length(ctx); err != nil {
			a.internalError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		DeviceID:          a.deviceID,
		Destination:       string(a.ctrl.Destination()),
		UserID:            a.ctrl.UserID(),
		PinSet:            set,
		PinLength:         length,
		BiometricsEnabled: a.ctrl.BiometricsEnabled(ctx),
	})
}

func (a *API) handleSetPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SetPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pin := passcode.NormalizePIN(req.Pin)
	if err := passcode.ValidatePIN(pin); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := a.ctrl.UserID()
	if userID == "" {
		writeError(w, http.StatusConflict, "no authenticated user to bind the pin to")
		return
	}

	if err := a.vault.SetPasscode(ctx, pin, passcode.BoundTo(userID)); err != nil {
		a.internalError(w, err)
		return
	}
	// Setting a PIN is this session's unlock.
	if err := a.ctrl.MarkUnlocked(ctx); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleVerifyPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := a.vault.VerifyPasscode(ctx, passcode.NormalizePIN(req.Pin))
	if err != nil {
		a.internalError(w, err)
		return
	}

	if res.Success {
		if err := a.ctrl.MarkUnlocked(ctx); err != nil {
			a.internalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, VerifyPinResponse{Success: true})
		return
	}

	if res.RemainingCooldown > 0 {
		writeCooldown(w, res.RemainingCooldown)
		return
	}
	writeJSON(w, http.StatusUnauthorized, VerifyPinResponse{Success: false})
}

func (a *API) handleClearPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := a.vault.ClearPasscode(ctx); err != nil {
		a.internalError(w, err)
		return
	}
	if err := a.ctrl.Refresh(ctx); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.CompleteOnboarding(r.Context()); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SetUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id must not be empty")
		return
	}

	if a.auth != nil {
		if err := a.auth.SignIn(req.UserID); err != nil {
			a.internalError(w, err)
			return
		}
	}
	if err := a.ctrl.SetUser(ctx, req.UserID); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.auth != nil {
		if err := a.auth.SignOut(); err != nil {
			a.internalError(w, err)
			return
		}
	}
	if err := a.ctrl.SetUser(ctx, ""); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLock(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.Lock(r.Context()); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetBiometrics(w http.ResponseWriter, r *http.Request) {
	var req SetBiometricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.ctrl.SetBiometricsEnabled(r.Context(), req.Enabled); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCompleteBiometrics(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.CompleteBiometricsSetup(r.Context()); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBackground(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.NoteBackground(r.Context()); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleForeground(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.NoteForeground(r.Context()); err != nil {
		a.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// internalError logs the failure and responds with a generic message.
func (a *API) internalError(w http.ResponseWriter, err error) {
	a.log.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, genericFailure)
}
