package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/bobarin/voicerelay/internal/db"
	"github.com/bobarin/voicerelay/internal/models"
	"github.com/bobarin/voicerelay/internal/relay"
	"github.com/bobarin/voicerelay/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxBodyBytes = 50 << 20
	defaultEventsWait   = 25 * time.Second
	maxEventsWait       = 55 * time.Second

	pendingEventsHeader = "X-Pending-Events"
)

// UtteranceLog is the read side of the utterance history.
type UtteranceLog interface {
	GetUtterance(ctx context.Context, id uuid.UUID) (*models.Utterance, error)
	ListUtterances(ctx context.Context, limit, offset int) ([]models.Utterance, error)
	CountUtterances(ctx context.Context) (int, error)
}

// AudioReadyFeed hands out audio-ready events to polling bots.
type AudioReadyFeed interface {
	NextAudioReady(ctx context.Context, timeout time.Duration) (*models.AudioReadyEvent, error)
	GetQueueLength(ctx context.Context) (int64, error)
}

// HandlerOptions wires the optional parts of the API. Nil fields disable the
// routes that need them.
type HandlerOptions struct {
	Utterances   UtteranceLog
	Events       AudioReadyFeed
	MaxBodyBytes int64
}

type Handler struct {
	relay        *relay.Relay
	utterances   UtteranceLog
	events       AudioReadyFeed
	maxBodyBytes int64
	logger       *zap.SugaredLogger
}

func NewHandler(rl *relay.Relay, logger *zap.SugaredLogger, opts HandlerOptions) *Handler {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Handler{
		relay:        rl,
		utterances:   opts.Utterances,
		events:       opts.Events,
		maxBodyBytes: maxBody,
		logger:       logger.Named("api"),
	}
}

// UpdateText handles POST /updateText
func (h *Handler) UpdateText(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "/updateText")
}

// DiscordSay handles POST /discordSay, used by the Discord bot. Same contract
// as /updateText.
func (h *Handler) DiscordSay(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "/discordSay")
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, endpoint string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	req, err := decodeSubmitRequest(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Endpoint = endpoint

	h.logger.Infow("Submit received",
		"endpoint", endpoint, "textLen", len(req.Text), "base64Len", len(req.Base64))

	res, err := h.relay.SubmitUtterance(r.Context(), req)
	if err != nil {
		h.respondRelayError(w, endpoint, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// decodeSubmitRequest accepts a JSON body or a form post. An empty body decodes
// to an empty request so the relay reports the missing fields.
func decodeSubmitRequest(r *http.Request) (models.SubmitRequest, error) {
	var req models.SubmitRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Text = r.PostForm.Get("text")
		req.Base64 = r.PostForm.Get("base64")
	case "multipart/form-data":
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, err
		}
		req.Text = r.PostFormValue("text")
		req.Base64 = r.PostFormValue("base64")
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
	}

	return req, nil
}

func (h *Handler) respondRelayError(w http.ResponseWriter, endpoint string, err error) {
	var relayErr *relay.Error
	message := err.Error()
	if errors.As(err, &relayErr) {
		message = relayErr.Message
	}

	switch {
	case errors.Is(err, relay.ErrValidation):
		respondError(w, http.StatusBadRequest, message)
	case errors.Is(err, relay.ErrConfiguration):
		h.logger.Errorw("Voice service not configured", "endpoint", endpoint, "error", err)
		respondError(w, http.StatusInternalServerError, message)
	case errors.Is(err, relay.ErrUpstreamAudioMissing):
		body := map[string]string{"error": message}
		var upstream *services.UpstreamError
		if errors.As(err, &upstream) && upstream.Body != "" {
			body["detail"] = upstream.Body
		}
		respondJSON(w, http.StatusBadGateway, body)
	default:
		h.logger.Errorw("Submit failed", "endpoint", endpoint, "error", err)
		respondError(w, http.StatusInternalServerError, message)
	}
}

// Output serves the persisted audio file.
func (h *Handler) Output(w http.ResponseWriter, r *http.Request) {
	audio, err := h.relay.FetchPersistedAudio(r.Context())
	if errors.Is(err, relay.ErrNotFound) {
		http.Error(w, "Audio not ready yet.", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Errorw("Failed to read audio", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	// The file is replaced in place; clients must always refetch.
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(audio.Data)
	}
}

// ListUtterances handles GET /utterances
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListUtterances(w http.ResponseWriter, r *http.Request) {
	if h.utterances == nil {
		respondError(w, http.StatusServiceUnavailable, "Utterance log is disabled")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	total, err := h.utterances.CountUtterances(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count utterances")
		return
	}

	utterances, err := h.utterances.ListUtterances(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list utterances")
		return
	}

	respondJSON(w, http.StatusOK, models.ListUtterancesResponse{
		Utterances: utterances,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}

// GetUtterance handles GET /utterances/{id}
func (h *Handler) GetUtterance(w http.ResponseWriter, r *http.Request) {
	if h.utterances == nil {
		respondError(w, http.StatusServiceUnavailable, "Utterance log is disabled")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid utterance ID")
		return
	}

	u, err := h.utterances.GetUtterance(r.Context(), id)
	if errors.Is(err, db.ErrUtteranceNotFound) {
		respondError(w, http.StatusNotFound, "Utterance not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get utterance")
		return
	}

	respondJSON(w, http.StatusOK, u)
}

// NextAudioReady handles GET /events/audio-ready, a long poll for the next
// audio-ready event. 204 when none arrives within ?wait seconds.
func (h *Handler) NextAudioReady(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		respondError(w, http.StatusServiceUnavailable, "Audio-ready events are disabled")
		return
	}

	wait := defaultEventsWait
	if s := r.URL.Query().Get("wait"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			wait = time.Duration(parsed) * time.Second
		}
	}
	if wait > maxEventsWait {
		wait = maxEventsWait
	}

	event, err := h.events.NextAudioReady(r.Context(), wait)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.Warnw("Failed to read audio-ready event", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to read events")
		return
	}

	// Lets a bot that fell behind drain the backlog without waiting
	if pending, err := h.events.GetQueueLength(r.Context()); err == nil {
		w.Header().Set(pendingEventsHeader, strconv.FormatInt(pending, 10))
	}

	if event == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respondJSON(w, http.StatusOK, event)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
