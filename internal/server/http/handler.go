// Package httpserver exposes session readiness signals as HTTP JSON.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/identity-keeper/internal/convert"
	"github.com/and161185/identity-keeper/internal/errs"
	"github.com/and161185/identity-keeper/internal/model"
	"github.com/and161185/identity-keeper/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBody = 1 << 16

// Engine is the part of session.Engine the handlers use.
type Engine interface {
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context)
	Snapshot() session.Snapshot
	WaitForProfile(ctx context.Context, maxWait time.Duration) bool
}

// Accounts is the account side of the identity provider.
type Accounts interface {
	Register(ctx context.Context, email, password, displayName string) (model.Identity, error)
	Token() model.Tokens
}

type waitQuery struct {
	MaxMS int `validate:"gte=0,lte=60000"`
}

type handler struct {
	engine   Engine
	accounts Accounts
	log      *zap.Logger
	validate *validator.Validate
}

// NewRouter builds the HTTP API.
func NewRouter(engine Engine, accounts Accounts, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handler{engine: engine, accounts: accounts, log: log, validate: validator.New(validator.WithRequiredStructEnabled())}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.logRequests)
	r.Get("/healthz", h.health)
	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Post("/register", h.register)
		r.Post("/signin", h.signIn)
		r.Post("/signout", h.signOut)
		r.Get("/wait", h.wait)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, convert.ToSessionView(h.engine.Snapshot()))
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req convert.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.UserView{ID: id.ID, Email: id.Email, DisplayName: id.DisplayName})
}

func (h *handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req convert.SignInRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.SignIn(r.Context(), req.Email, req.Password); err != nil {
		h.fail(w, "sign in", err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToTokenView(h.accounts.Token()))
}

func (h *handler) signOut(w http.ResponseWriter, r *http.Request) {
	h.engine.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) wait(w http.ResponseWriter, r *http.Request) {
	var q waitQuery
	if s := r.URL.Query().Get("max_ms"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_ms must be an integer")
			return
		}
		q.MaxMS = n
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ready := h.engine.WaitForProfile(r.Context(), time.Duration(q.MaxMS)*time.Millisecond)
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, errs.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, "bad credentials")
	case errors.Is(err, errs.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "account exists")
	case errors.Is(err, errs.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, "invalid email")
	default:
		h.log.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
