package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/voicerelay/internal/models"
	"github.com/bobarin/voicerelay/internal/services"
	"github.com/bobarin/voicerelay/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultRecordTimeout = 10 * time.Second

// Recorder is told about every persisted utterance (utterance log, queue,
// object storage mirror). Failures are logged and never fail the request.
type Recorder interface {
	Name() string
	Record(ctx context.Context, u *models.Utterance) error
}

// Config holds everything the relay needs at construction. Upstream
// credentials and timeouts live in the VoiceService.
type Config struct {
	PublicDir     string        // Directory the audio file is served from, created by New
	OutputFile    string        // Fixed file name, e.g. output.mp3
	RecordTimeout time.Duration // Budget for all recorders after a write
}

// PersistedAudio is the current audio file.
type PersistedAudio struct {
	Data        []byte
	ContentType string
}

// Relay turns text or uploaded audio into the single persisted audio file.
type Relay struct {
	store         *storage.LocalStore
	voice         services.VoiceService
	recorders     []Recorder
	recordTimeout time.Duration
	logger        *zap.SugaredLogger

	// In-flight recorder fan-outs
	recording sync.WaitGroup
}

// New creates the relay and makes sure the public directory exists before the
// first write.
func New(cfg Config, voice services.VoiceService, logger *zap.SugaredLogger, recorders ...Recorder) (*Relay, error) {
	store := storage.NewLocalStore(cfg.PublicDir, cfg.OutputFile)
	if err := store.EnsureDir(); err != nil {
		return nil, err
	}

	recordTimeout := cfg.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = defaultRecordTimeout
	}

	return &Relay{
		store:         store,
		voice:         voice,
		recorders:     recorders,
		recordTimeout: recordTimeout,
		logger:        logger.Named("relay"),
	}, nil
}

// URLPath is where the persisted file is served.
func (r *Relay) URLPath() string { return r.store.URLPath() }

// Path is the file on disk.
func (r *Relay) Path() string { return r.store.Path() }

// Wait blocks until every recorder started so far has finished. Call it on
// shutdown before closing the sinks.
func (r *Relay) Wait() { r.recording.Wait() }

// SubmitUtterance persists caller-supplied audio, or asks the voice service to
// answer the text and persists the returned audio. Audio wins when both are set.
func (r *Relay) SubmitUtterance(ctx context.Context, req models.SubmitRequest) (*models.SubmitResponse, error) {
	b64 := strings.TrimSpace(req.Base64)
	text := strings.TrimSpace(req.Text)

	if b64 == "" && text == "" {
		return nil, newError(ErrValidation, "Missing 'text' or 'base64'.", nil)
	}

	if b64 != "" {
		audio, err := DecodeAudio(b64)
		if err != nil {
			return nil, newError(ErrValidation, "'base64' is not valid base64 audio.", err)
		}
		return r.persist(ctx, &models.Utterance{
			Source:   models.UtteranceSourceUpload,
			Endpoint: req.Endpoint,
		}, audio)
	}

	if err := r.voice.CheckConfig(); err != nil {
		return nil, newError(ErrConfiguration, "Missing voice service credentials.", err)
	}

	resp, err := r.voice.GetResponse(ctx, text)
	if errors.Is(err, services.ErrMissingCredentials) {
		return nil, newError(ErrConfiguration, "Missing voice service credentials.", err)
	}
	if err != nil {
		r.logger.Warnw("Voice service gave no audio", "endpoint", req.Endpoint, "provider", r.voice.Name(), "error", err)
		return nil, newError(ErrUpstreamAudioMissing, r.noAudioMessage(), err)
	}
	if resp == nil || resp.AudioBase64 == "" {
		return nil, newError(ErrUpstreamAudioMissing, r.noAudioMessage(), nil)
	}

	audio, err := DecodeAudio(resp.AudioBase64)
	if err != nil {
		return nil, newError(ErrUpstreamAudioMissing, r.noAudioMessage(), err)
	}

	provider := r.voice.Name()
	transport := resp.Transport
	return r.persist(ctx, &models.Utterance{
		Source:       models.UtteranceSourceVoice,
		Endpoint:     req.Endpoint,
		InputText:    &text,
		ResponseText: resp.ResponseText,
		Provider:     &provider,
		Transport:    &transport,
	}, audio)
}

// FetchPersistedAudio returns exactly the bytes of the last successful write.
func (r *Relay) FetchPersistedAudio(ctx context.Context) (*PersistedAudio, error) {
	data, contentType, err := r.store.Read()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(ErrNotFound, "Audio not ready yet.", nil)
	}
	if err != nil {
		return nil, err
	}
	return &PersistedAudio{Data: data, ContentType: contentType}, nil
}

func (r *Relay) persist(ctx context.Context, u *models.Utterance, audio []byte) (*models.SubmitResponse, error) {
	if err := r.store.Write(audio); err != nil {
		return nil, err
	}

	u.ID = uuid.New()
	u.ByteSize = int64(len(audio))
	u.URL = r.store.URLPath()
	u.CreatedAt = time.Now().UTC()
	u.Audio = audio

	r.logger.Infow("Persisted audio",
		"utterance", u.ID, "endpoint", u.Endpoint, "source", u.Source,
		"bytes", u.ByteSize, "path", r.store.Path())

	r.record(ctx, u)

	return &models.SubmitResponse{
		Success: true,
		Text:    u.ResponseText,
		URL:     u.URL,
	}, nil
}

// record fans the utterance out to every recorder in the background. The
// response does not wait for them.
func (r *Relay) record(ctx context.Context, u *models.Utterance) {
	if len(r.recorders) == 0 {
		return
	}

	// The write already happened; a caller hanging up must not cut recording short.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.recordTimeout)
	r.recording.Add(1)

	var g errgroup.Group
	for _, rec := range r.recorders {
		rec := rec
		uc := *u // recorders may fill fields (created_at) on their copy
		g.Go(func() error {
			if err := rec.Record(recordCtx, &uc); err != nil {
				r.logger.Warnw("Recorder failed", "recorder", rec.Name(), "utterance", uc.ID, "error", err)
				return err
			}
			return nil
		})
	}

	go func() {
		defer r.recording.Done()
		defer cancel()

		if err := g.Wait(); err != nil {
			r.logger.Debugw("Utterance recorded with failures", "utterance", u.ID)
		}
	}()
}

func (r *Relay) noAudioMessage() string {
	switch r.voice.Name() {
	case "convai":
		return "Convai returned no audio."
	default:
		return "Voice service returned no audio."
	}
}
