package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskrelay/src/broker"
	"taskrelay/src/contracts"
	"taskrelay/src/db"
	"taskrelay/src/jsoncodec"
	"taskrelay/src/logger"
	"taskrelay/src/models"
	"taskrelay/src/repository"
	"taskrelay/src/uow"
)

const maxBodyBytes = 1 << 20

// KeyHeader lets a client choose the record key of a published message.
const KeyHeader = "X-Message-Key"

// Publisher is the producer surface the API needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, key string)
	PublishMessage(ctx context.Context, m broker.Message)
}

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	environment string
	publisher   Publisher
	manager     *db.Manager
	logger      logger.Logger
}

func NewHandlers(environment string, publisher Publisher, manager *db.Manager, log logger.Logger) *Handlers {
	return &Handlers{
		environment: environment,
		publisher:   publisher,
		manager:     manager,
		logger:      log.With("component", "api"),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "env": h.environment})
}

// PublishMessage publishes the request body as-is to the topic in the path.
// Publishing is best effort, so the response is always 202 once the body
// is accepted.
func (h *Handlers) PublishMessage(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if !jsoncodec.Valid(body) {
		writeError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	key := r.Header.Get(KeyHeader)
	if key == "" {
		key = broker.NewKey()
	}
	h.publisher.Publish(r.Context(), topic, json.RawMessage(body), key)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "topic": topic, "key": key})
}

// CreateSample stores a sample, or with ?async=true publishes it for the
// consumer to store.
func (h *Handlers) CreateSample(w http.ResponseWriter, r *http.Request) {
	var req contracts.SampleMessage
	if err := jsoncodec.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		key := broker.NewKey()
		h.publisher.PublishMessage(r.Context(), contracts.PersistSample{Sample: req, MessageKey: key})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "key": key})
		return
	}

	var created *models.Sample
	err := uow.Run(r.Context(), h.manager, uow.Default(), func(ctx context.Context, u *uow.UnitOfWork) error {
		samples, err := uow.Repo[*repository.Samples](u, uow.Samples)
		if err != nil {
			return err
		}
		created, err = samples.Create(ctx, repository.Fields{"name": req.Name})
		return err
	})
	if err != nil {
		h.internalError(w, "failed to create sample", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetSample(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var sample *models.Sample
	err := h.manager.Session(r.Context(), func(ctx context.Context, s *db.Session) error {
		var err error
		sample, err = repository.NewSamples(s).Get(ctx, id)
		return err
	})
	if err != nil {
		h.internalError(w, "failed to get sample", err)
		return
	}
	if sample == nil {
		writeError(w, http.StatusNotFound, "sample not found")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// ListSamples supports ?limit=&skip=&name=.
func (h *Handlers) ListSamples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	skip, err := intParam(q.Get("skip"))
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "invalid skip")
		return
	}
	var preds []repository.Predicate
	if name := q.Get("name"); name != "" {
		preds = append(preds, repository.Eq("name", name))
	}

	samples := []*models.Sample{}
	err = h.manager.Session(r.Context(), func(ctx context.Context, s *db.Session) error {
		found, err := repository.NewSamples(s).Filter(ctx, limit, skip, preds...)
		if err != nil {
			return err
		}
		samples = append(samples, found...)
		return nil
	})
	if err != nil {
		h.internalError(w, "failed to list samples", err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *Handlers) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	status := http.StatusInternalServerError
	if errors.Is(err, db.ErrNotInitialized) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, msg)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncodec.Encode(w, v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
