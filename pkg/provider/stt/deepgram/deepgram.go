// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. A finalized utterance is streamed in 100 ms
// chunks, the stream is closed, and every final result Deepgram sends before
// hanging up is joined into the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/tapvox/pkg/audio"
	"github.com/MrWong99/tapvox/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "es", "en").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Used for self-hosted
// deployments and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Samples) == 0 {
		return stt.Transcript{}, nil
	}
	samples := audio.ToMono(req.Samples, req.Channels)
	rate := req.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}

	wsURL, err := p.buildURL(req.Language, rate)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	// Results arrive while audio is still being sent, so read concurrently.
	type result struct {
		tr  stt.Transcript
		err error
	}
	results := make(chan result, 1)
	go func() {
		tr, err := readFinals(ctx, conn)
		results <- result{tr, err}
	}()

	pcm := audio.FloatToPCM16(samples)
	chunk := rate / 10 * 2 // 100 ms of 16-bit mono
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return stt.Transcript{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	select {
	case r := <-results:
		if r.err != nil {
			return stt.Transcript{}, r.err
		}
		lang := req.Language
		if lang == "" {
			lang = p.language
		}
		r.tr.Language = lang
		conn.Close(websocket.StatusNormalClosure, "done")
		return r.tr, nil
	case <-ctx.Done():
		return stt.Transcript{}, ctx.Err()
	}
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (p *Provider) buildURL(language string, sampleRate int) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	if language == "" {
		language = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// readFinals collects final results until Deepgram closes the socket. The
// confidence reported is the mean over non-empty finals.
func readFinals(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		parts   []string
		confSum float64
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}
		text, conf, ok := parseDeepgramResponse(msg)
		if !ok || text == "" {
			continue
		}
		parts = append(parts, text)
		confSum += conf
	}

	tr := stt.Transcript{Text: strings.Join(parts, " ")}
	if len(parts) > 0 {
		tr.Confidence = confSum / float64(len(parts))
	}
	return tr, nil
}

// parseDeepgramResponse extracts the transcript of a final Results message.
// Returns ok=false for anything else (interim results, metadata).
func parseDeepgramResponse(data []byte) (text string, confidence float64, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", 0, false
	}
	if resp.Type != "Results" || !resp.IsFinal {
		return "", 0, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", 0, false
	}
	alt := resp.Channel.Alternatives[0]
	return strings.TrimSpace(alt.Transcript), alt.Confidence, true
}
