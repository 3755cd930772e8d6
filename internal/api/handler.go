package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"kwrelay/internal/flow"
	"kwrelay/internal/ports"
	"kwrelay/internal/types"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// CommandDispatcher is satisfied by *flow.Dispatcher.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd types.Command) flow.Result
}

// Handler serves the HTTP transport: commands, plain messages and raw chat updates.
type Handler struct {
	Commands CommandDispatcher
	Messages ports.MessageHandler
	APIKey   string
	Mapping  types.WebhookConfig
}

func NewHandler(commands CommandDispatcher, messages ports.MessageHandler, apiKey string, mapping types.WebhookConfig) *Handler {
	return &Handler{
		Commands: commands,
		Messages: messages,
		APIKey:   apiKey,
		Mapping:  mapping,
	}
}

// Router serves /health and /metrics, plus the authenticated /v1 API when the handler has
// command and message handlers.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogging)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	if h.Commands == nil || h.Messages == nil {
		return r
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(h.requireAPIKey)
		r.Post("/commands", h.handleCommand)
		r.Post("/messages", h.handleMessage)
		r.Post("/updates", h.handleUpdate)
	})
	return r
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(types.APIKeyHdrName)
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.APIKey)) != 1 {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Ingested describes what happened to one inbound command, message or update.
type Ingested struct {
	Code         int
	Status       string
	Reply        string
	Notification *types.Notification
}

func (i Ingested) body() map[string]any {
	out := map[string]any{"status": i.Status}
	if i.Reply != "" {
		out["reply"] = i.Reply
	}
	if i.Notification != nil {
		out["notification"] = i.Notification
	}
	return out
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd types.Command
	if err := decodeBody(r, &cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := h.Command(r.Context(), cmd)
	writeJSONOrFail(w, res.Code, res.body())
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg types.ChatMessage
	if err := decodeBody(r, &msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.Message(r.Context(), msg)
	if err != nil {
		http.Error(w, "failed to publish", http.StatusBadGateway)
		return
	}
	writeJSONOrFail(w, res.Code, res.body())
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.Ingest(r.Context(), payload)
	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "failed to publish", http.StatusBadGateway)
		return
	}
	writeJSONOrFail(w, res.Code, res.body())
}

// Ingest accepts an arbitrary decoded JSON update (Telegram Update shape by default), maps it
// with the configured JMESPath expressions and routes it: known "/" commands go to the
// dispatcher, any other text to the matcher. Updates without text are ignored.
func (h *Handler) Ingest(ctx context.Context, payload map[string]any) (Ingested, error) {
	msg, err := MapUpdate(h.Mapping, payload)
	if err != nil {
		return Ingested{}, types.Err(types.ErrInvalidArgument, err, "map update")
	}
	if msg.Text == "" {
		return Ingested{Code: http.StatusOK, Status: "ignored"}, nil
	}
	if cmd, ok := flow.ParseCommand(msg.Text, "/"); ok && flow.IsKnownCommand(cmd.Name) {
		cmd.Username = msg.Username
		cmd.Chat = msg.Chat
		return h.Command(ctx, cmd), nil
	}
	return h.Message(ctx, msg)
}

func (h *Handler) Command(ctx context.Context, cmd types.Command) Ingested {
	res := h.Commands.Dispatch(ctx, cmd)
	return Ingested{
		Code:   commandStatusCode(res.State),
		Status: flow.StatusTextMap[res.State],
		Reply:  res.Reply.Text,
	}
}

func (h *Handler) Message(ctx context.Context, msg types.ChatMessage) (Ingested, error) {
	n, err := h.Messages.Handle(ctx, msg)
	if err != nil {
		return Ingested{}, err
	}
	if n == nil {
		return Ingested{Code: http.StatusOK, Status: "no_match"}, nil
	}
	return Ingested{Code: http.StatusAccepted, Status: "forwarded", Notification: n}, nil
}

func commandStatusCode(s flow.State) int {
	switch s {
	case flow.Rejected:
		return http.StatusForbidden
	case flow.InvalidArgument:
		return http.StatusBadRequest
	case flow.UnknownCommand:
		return http.StatusNotFound
	case flow.SaveFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func decodeBody(r *http.Request, v any) error {
	defer func() {
		_ = r.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("read error")
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid json")
	}
	return nil
}

func writeJSONOrFail(w http.ResponseWriter, code int, v any) {
	if err := writeJSON(w, code, v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
