package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

const defaultVoiceStyle = "professional-male"

// DefaultVoices maps voice styles to ElevenLabs premade voice IDs.
var DefaultVoices = map[string]string{
	"professional-male":   "EXAVITQu4vr4xnSDxMaL",
	"professional-female": "21m00Tcm4TlvDq8ikWAM",
	"authoritative-male":  "VR6AewLTigWG4xSOukaG",
	"friendly-female":     "jsCqWAovK2LkecY7zXl4",
	"energetic-male":      "pFZP5JQG7iQjIQuC4Bku",
}

// DurationProber measures the length of an audio file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Synthesizer turns script text into narration through the ElevenLabs API
type Synthesizer struct {
	cfg    config.AudioConfig
	wpm    int
	voices map[string]string
	client *http.Client
	prober DurationProber
	log    *slog.Logger
}

// New creates a Synthesizer. client may be nil; prober may be nil, in which
// case durations are estimated from the word count.
func New(cfg config.AudioConfig, wpm int, client *http.Client, prober DurationProber, logger *slog.Logger) *Synthesizer {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if wpm <= 0 {
		wpm = 150
	}
	voices := make(map[string]string, len(DefaultVoices)+len(cfg.Voices))
	for k, v := range DefaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}
	return &Synthesizer{
		cfg:    cfg,
		wpm:    wpm,
		voices: voices,
		client: client,
		prober: prober,
		log:    logger.With("component", "audio"),
	}
}

// VoiceID resolves a voice style, falling back to the professional male voice.
func (s *Synthesizer) VoiceID(style string) string {
	if id, ok := s.voices[strings.ToLower(strings.TrimSpace(style))]; ok {
		return id
	}
	return s.voices[defaultVoiceStyle]
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize narrates text with the voice for voiceStyle and writes the MP3
// to outPath. Text longer than the configured character limit is sent in
// several requests whose audio is appended in order.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceStyle, apiKey, outPath string) (*types.NarrationAudio, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, types.NewError(types.KindMissingCredential, "synthesize", errors.New("elevenlabs api key not set"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, types.NewError(types.KindInvalidRequest, "synthesize", errors.New("empty narration text"))
	}

	voiceID := s.VoiceID(voiceStyle)
	chunks := Chunk(text, s.cfg.MaxChars)
	s.log.Info("synthesizing narration", "voice", voiceID, "chars", len(text), "chunks", len(chunks))

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}

	var written int64
	for i, chunk := range chunks {
		n, err := s.request(ctx, voiceID, chunk, apiKey, f)
		written += n
		if err != nil {
			f.Close()
			os.Remove(outPath)
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		s.log.Debug("chunk synthesized", "chunk", i+1, "bytes", n)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close audio file: %w", err)
	}

	narration := &types.NarrationAudio{
		Path:        outPath,
		Bytes:       written,
		DurationSec: s.estimate(text),
		Chunks:      len(chunks),
	}
	if s.prober != nil {
		if d, err := s.prober.Duration(ctx, outPath); err != nil {
			s.log.Warn("could not probe narration duration, using estimate", "error", err)
		} else {
			narration.DurationSec = d
		}
	}

	s.log.Info("narration ready", "path", outPath, "bytes", written, "duration_sec", narration.DurationSec)
	return narration, nil
}

func (s *Synthesizer) request(ctx context.Context, voiceID, text, apiKey string, w io.Writer) (int64, error) {
	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: s.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       s.cfg.Stability,
			SimilarityBoost: s.cfg.SimilarityBoost,
			Style:           s.cfg.Style,
			UseSpeakerBoost: s.cfg.SpeakerBoost,
		},
	})
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(s.cfg.BaseURL, "/"), voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, types.NewError(types.KindCanceled, "tts request", ctx.Err())
		}
		return 0, types.NewError(types.KindProviderError, "tts request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, classifyFailure(resp.StatusCode, payload)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, types.NewError(types.KindProviderError, "read tts audio", err)
	}
	if n == 0 {
		return 0, types.NewError(types.KindProviderError, "read tts audio", errors.New("empty audio response"))
	}
	return n, nil
}

// providerError is the shape of ElevenLabs error bodies. detail is an object
// for structured errors and a plain string for some validation failures.
type providerError struct {
	Detail json.RawMessage `json:"detail"`
}

type providerDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func classifyFailure(status int, payload []byte) error {
	var pe providerError
	var detail providerDetail
	if json.Unmarshal(payload, &pe) == nil && len(pe.Detail) > 0 {
		if json.Unmarshal(pe.Detail, &detail) != nil {
			var msg string
			if json.Unmarshal(pe.Detail, &msg) == nil {
				detail.Message = msg
			}
		}
	}

	cause := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(payload)))
	switch st := strings.ToLower(detail.Status); {
	case strings.Contains(st, "character_limit"), strings.Contains(st, "quota_exceeded"), strings.Contains(st, "too_long"):
		return types.NewError(types.KindCharacterLimitExceeded, "tts request", cause)
	}
	return types.NewError(types.KindProviderError, "tts request", cause)
}

func (s *Synthesizer) estimate(text string) float64 {
	return float64(len(strings.Fields(text))) / float64(s.wpm) * 60
}
