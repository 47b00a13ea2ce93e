package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/travco-dmc/backoffice-messaging/api/validator"
)

// ErrNotFound is returned by a DB when a record or user does not exist.
var ErrNotFound = errors.New("not found")

// A DB provides the storage layer that persists users and resource records.
type DB interface {
	GetUser(ctx context.Context, username string) (User, error)
	ListRecords(ctx context.Context, resource string) ([]json.RawMessage, error)
	InsertRecord(ctx context.Context, resource string, body json.RawMessage) (json.RawMessage, error)
	UpdateRecord(ctx context.Context, resource, id string, patch json.RawMessage) (bool, error)
	MarkAllMessagesRead(ctx context.Context, username string) (int64, error)
}

// API provides the REST endpoints for the back-office application.
type API struct {
	Logger *slog.Logger
	DB     DB
	Val    *validator.Validator
	Tokens *TokenIssuer

	// LoginLimit throttles login attempts. Nil disables throttling.
	LoginLimit *rate.Limiter

	once sync.Once
	mux  *http.ServeMux
}

func (a *API) setupRoutes() {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("GET /api/auth/user", a.requireAuth(a.currentUser))

	mux.HandleFunc("GET /api/storage/{resource}", a.requireAuth(a.listRecords))
	mux.HandleFunc("POST /api/storage/{resource}", a.requireAuth(a.createRecord))
	mux.HandleFunc("PATCH /api/storage/{resource}/{id}", a.requireAuth(a.updateRecord))

	mux.HandleFunc("PATCH /api/messages/read-all", a.requireAuth(a.readAllMessages))

	a.mux = mux
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.once.Do(a.setupRoutes)
	a.Logger.Info("Request received", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

func (a *API) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.Logger.Error("Could not encode JSON body", "error", err.Error())
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, err error, msg string) {
	type response struct {
		Error string `json:"error"`
	}
	a.Logger.Error("Error", "error", err.Error())
	a.respond(w, status, response{Error: msg})
}

func (a *API) validateBody(w http.ResponseWriter, s interface{}) bool {
	errs := a.Val.ValidateStruct(s)
	type response struct {
		Errors []validator.ValidationError `json:"errors"`
	}

	if len(errs) > 0 {
		a.respond(w, http.StatusBadRequest, &response{
			Errors: errs,
		})
		return false
	}
	return true
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type (
		request struct {
			Username string `json:"username" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		response struct {
			Token string `json:"token"`
			User  User   `json:"user"`
		}
	)

	if a.LoginLimit != nil && !a.LoginLimit.Allow() {
		a.respondError(w, http.StatusTooManyRequests, errors.New("login rate exceeded"), "Too many login attempts")
		return
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	if valid := a.validateBody(w, &body); !valid {
		return
	}

	user, err := a.DB.GetUser(r.Context(), body.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.respondError(w, http.StatusUnauthorized, err, "Invalid credentials")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
		a.respondError(w, http.StatusUnauthorized, err, "Invalid credentials")
		return
	}

	token, err := a.Tokens.Issue(user.Username)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}

	a.respond(w, http.StatusOK, response{Token: token, User: user})
}

// currentUser returns the authenticated account. The sync clients also use
// this endpoint as their liveness probe, so it must stay cheap.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.DB.GetUser(r.Context(), usernameFrom(r))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.respondError(w, http.StatusUnauthorized, err, "Unknown user")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not load user")
		return
	}
	a.respond(w, http.StatusOK, user)
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	if errs := a.Val.Validate(resource, "resource"); len(errs) > 0 {
		a.respondError(w, http.StatusBadRequest, errors.New("bad resource name"), "Invalid resource")
		return
	}

	records, err := a.DB.ListRecords(r.Context(), resource)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not list records")
		return
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	a.respond(w, http.StatusOK, records)
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	if errs := a.Val.Validate(resource, "resource"); len(errs) > 0 {
		a.respondError(w, http.StatusBadRequest, errors.New("bad resource name"), "Invalid resource")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not read request body")
		return
	}
	if !json.Valid(body) {
		a.respondError(w, http.StatusBadRequest, errors.New("invalid JSON"), "Could not decode request body")
		return
	}

	// Messages get shape validation; other collections are schemaless.
	if resource == "messages" {
		var msg messageRecord
		if err := json.Unmarshal(body, &msg); err != nil {
			a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
			return
		}
		if valid := a.validateBody(w, &msg); !valid {
			return
		}
	}

	saved, err := a.DB.InsertRecord(r.Context(), resource, body)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not save record")
		return
	}
	a.respond(w, http.StatusCreated, saved)
}

func (a *API) updateRecord(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Updated bool `json:"updated"`
	}

	resource := r.PathValue("resource")
	id := r.PathValue("id")
	if errs := a.Val.Validate(resource, "resource"); len(errs) > 0 {
		a.respondError(w, http.StatusBadRequest, errors.New("bad resource name"), "Invalid resource")
		return
	}

	patch, err := io.ReadAll(r.Body)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not read request body")
		return
	}
	if !json.Valid(patch) {
		a.respondError(w, http.StatusBadRequest, errors.New("invalid JSON"), "Could not decode request body")
		return
	}

	// A missing record is not an error; the client contract treats it as a
	// no-op.
	updated, err := a.DB.UpdateRecord(r.Context(), resource, id, patch)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not update record")
		return
	}
	a.respond(w, http.StatusOK, response{Updated: updated})
}

func (a *API) readAllMessages(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Updated int64 `json:"updated"`
	}

	n, err := a.DB.MarkAllMessagesRead(r.Context(), usernameFrom(r))
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not mark messages read")
		return
	}
	a.respond(w, http.StatusOK, response{Updated: n})
}
