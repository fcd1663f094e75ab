// Package handler exposes the gateway over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/integrations/appsscript"
	"llm-gateway/internal/provider"
	"llm-gateway/internal/usecase"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = 32 << 20
)

type ChatRouter interface {
	Chat(ctx context.Context, req domain.ChatRequest) (*usecase.Stream, error)
}

type ModelCatalog interface {
	ListModels(ctx context.Context, providerName string) ([]string, error)
}

type SessionReadWriter interface {
	Get(ctx context.Context, id string) (domain.Session, error)
	Put(ctx context.Context, id string, messages []domain.Message) error
}

type AuxProxy interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (*http.Response, error)
	VectorSearch(ctx context.Context, query string) (*http.Response, error)
	Projects(ctx context.Context) ([]appsscript.Project, error)
	ProjectFiles(ctx context.Context, scriptID string) ([]string, error)
}

type Handler struct {
	chat     ChatRouter
	catalog  ModelCatalog
	sessions SessionReadWriter
	aux      AuxProxy
	log      zerolog.Logger
}

func NewHandler(chat ChatRouter, catalog ModelCatalog, sessions SessionReadWriter, aux AuxProxy, log zerolog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat router must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("handler: model catalog must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("handler: session store must not be nil")
	}
	if aux == nil {
		return nil, errors.New("handler: aux proxy must not be nil")
	}
	return &Handler{
		chat:     chat,
		catalog:  catalog,
		sessions: sessions,
		aux:      aux,
		log:      log.With().Str("component", "http").Logger(),
	}, nil
}

// Routes returns the full HTTP surface. Every route is also served under
// /api.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	route := func(method, path string, fn http.HandlerFunc) {
		mux.HandleFunc(method+" "+path, fn)
		mux.HandleFunc(method+" /api"+path, fn)
	}
	route(http.MethodPost, "/chat", h.handleChat)
	route(http.MethodGet, "/models", h.handleModels)
	route(http.MethodPost, "/transcribe", h.handleTranscribe)
	route(http.MethodGet, "/session", h.handleGetSession)
	route(http.MethodPut, "/session", h.handlePutSession)
	route(http.MethodPost, "/vectorize/search", h.handleVectorSearch)
	route(http.MethodGet, "/projects", h.handleProjects)
	route(http.MethodGet, "/project/files", h.handleProjectFiles)
	route(http.MethodGet, "/healthz", h.handleHealth)
	return withCorrelationID(h.withAccessLog(mux))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	stream, err := h.chat.Chat(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Model", stream.Model())
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for chunk := range stream.Chunks() {
		if chunk.Err != nil {
			// Headers are gone; the body simply ends here.
			loggerFor(r, h.log).Warn().Err(chunk.Err).Msg("chat stream truncated")
			return
		}
		if _, err := io.WriteString(w, chunk.Text); err != nil {
			return
		}
		_ = rc.Flush()
	}
}

type modelsResponse struct {
	Models []string `json:"models"`
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.catalog.ListModels(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	file, header, err := audioPart(r)
	if err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidRequestBody, Reason: "multipart field \"audio\" is required", Err: err})
		return
	}
	defer func() { _ = file.Close() }()

	res, err := h.aux.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.relay(w, r, res)
}

// audioPart returns the uploaded file from field "audio", falling back to
// "file".
func audioPart(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		return nil, nil, err
	}
	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("file")
	}
	return file, header, err
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type putSessionRequest struct {
	Messages []domain.Message `json:"messages"`
}

func (h *Handler) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var body putSessionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.sessions.Put(r.Context(), r.URL.Query().Get("id"), body.Messages); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type vectorSearchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) handleVectorSearch(w http.ResponseWriter, r *http.Request) {
	var body vectorSearchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.aux.VectorSearch(r.Context(), body.Query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.relay(w, r, res)
}

type projectsResponse struct {
	Projects []appsscript.Project `json:"projects"`
}

func (h *Handler) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.aux.Projects(r.Context())
	if err != nil {
		h.writeUpstreamVerbatim(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: projects})
}

type filesResponse struct {
	Files []string `json:"files"`
}

func (h *Handler) handleProjectFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.aux.ProjectFiles(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeUpstreamVerbatim(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filesResponse{Files: files})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// relay copies an upstream response to the caller: status, content type and
// body, unchanged.
func (h *Handler) relay(w http.ResponseWriter, r *http.Request, res *http.Response) {
	defer func() { _ = res.Body.Close() }()
	if ct := res.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		loggerFor(r, h.log).Warn().Err(err).Msg("relay copy failed")
	}
}

// writeUpstreamVerbatim relays a non-2xx upstream body when there is one and
// falls back to the JSON error shape otherwise.
func (h *Handler) writeUpstreamVerbatim(w http.ResponseWriter, r *http.Request, err error) {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusErr.StatusCode)
		_, _ = io.WriteString(w, statusErr.Body)
		return
	}
	h.writeError(w, r, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return &usecase.Error{Code: usecase.ErrorInvalidRequestBody, Reason: "request body must be valid JSON", Err: err}
	}
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	evt := loggerFor(r, h.log).Warn()
	if status >= http.StatusInternalServerError {
		evt = loggerFor(r, h.log).Error()
	}
	evt.Err(err).Int("status", status).Str("code", body.Error).Msg("request failed")
	writeJSON(w, status, body)
}

func mapError(err error) (int, errorResponse) {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		return ue.HTTPStatus(), errorResponse{Error: string(ue.Code), Message: ue.Reason}
	}
	return http.StatusInternalServerError, errorResponse{
		Error:   string(usecase.ErrorInternal),
		Message: "internal error",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
