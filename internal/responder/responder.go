// Package responder turns a transcribed utterance into queued phrases.
//
// A [Responder] appends the user turn to the conversation history, streams
// the language model's reply, cuts it into phrases as fragments arrive and
// hands each phrase to the busy coordinator for the speech worker. The full
// reply is recorded as the assistant turn once the stream ends cleanly.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/tapvox/internal/busy"
	"github.com/MrWong99/tapvox/internal/history"
	"github.com/MrWong99/tapvox/internal/observe"
	"github.com/MrWong99/tapvox/internal/phrase"
	"github.com/MrWong99/tapvox/pkg/provider/llm"
)

// DefaultTimeout bounds a single streamed response.
const DefaultTimeout = 60 * time.Second

// Option configures a Responder.
type Option func(*Responder)

// WithTimeout sets the per-response timeout. Zero or negative keeps the
// default.
func WithTimeout(d time.Duration) Option {
	return func(r *Responder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithDelimiters sets the phrase delimiter table.
func WithDelimiters(d phrase.Delimiters) Option {
	return func(r *Responder) { r.delims = d }
}

// WithDefaultPause sets the pause used for the flushed tail of a response.
func WithDefaultPause(d time.Duration) Option {
	return func(r *Responder) { r.defaultPause = d }
}

// WithSampling sets temperature and max tokens forwarded to the model. Zero
// values leave the provider defaults.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(r *Responder) {
		r.temperature = temperature
		r.maxTokens = maxTokens
	}
}

// WithMetrics overrides the metrics sink. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(r *Responder) { r.providerName = name }
}

// Responder streams replies for one conversation. Respond may be called from
// several goroutines; the history and coordinator serialise their own state.
type Responder struct {
	llm     llm.Provider
	history *history.History
	coord   *busy.Coordinator

	timeout      time.Duration
	delims       phrase.Delimiters
	defaultPause time.Duration
	temperature  float64
	maxTokens    int
	metrics      *observe.Metrics
	providerName string
}

// New creates a Responder.
func New(p llm.Provider, h *history.History, c *busy.Coordinator, opts ...Option) *Responder {
	r := &Responder{
		llm:          p,
		history:      h,
		coord:        c,
		timeout:      DefaultTimeout,
		delims:       phrase.DefaultDelimiters(),
		defaultPause: phrase.DefaultPause,
		providerName: "llm",
	}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Respond answers text on behalf of the response identified by epoch (as
// returned by [busy.Coordinator.Begin]). It blocks until the stream ended and
// returns the full reply.
//
// On any failure the response is abandoned without an assistant turn; the
// error is logged and returned. Phrases already queued still play. The
// coordinator is told the response finished in every case.
func (r *Responder) Respond(ctx context.Context, text string, epoch uint64) (reply string, err error) {
	defer r.coord.FinishResponse(epoch)

	r.metrics.ResponsesInFlight.Add(ctx, 1)
	defer r.metrics.ResponsesInFlight.Add(context.WithoutCancel(ctx), -1)

	r.history.Append(llm.RoleUser, text)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, end := observe.StartStage(ctx, "llm.stream", observe.Attr("provider", r.providerName))
	defer func() { end(err) }()

	log := observe.Logger(ctx).With("epoch", epoch)
	start := time.Now()

	reply, err = r.stream(ctx, epoch, start, log)
	r.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordProviderError(ctx, r.providerName, "llm")
		r.metrics.RecordProviderRequest(ctx, r.providerName, "llm", "error")
		log.Error("responder: response failed", "err", err)
		return "", err
	}
	r.metrics.RecordProviderRequest(ctx, r.providerName, "llm", "ok")

	if strings.TrimSpace(reply) != "" {
		r.history.Append(llm.RoleAssistant, reply)
	}
	log.Debug("responder: response complete", "chars", len(reply), "elapsed", time.Since(start))
	return reply, nil
}

// stream consumes the model's stream and enqueues phrases. It returns the
// full reply text.
func (r *Responder) stream(ctx context.Context, epoch uint64, start time.Time, log *slog.Logger) (string, error) {
	ch, err := r.llm.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    r.history.Snapshot(),
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("responder: start stream: %w", err)
	}
	// Unblock the provider's sender if we leave early.
	defer func() { go drainChunks(ch) }()

	seg := phrase.NewSegmenter(r.delims, r.defaultPause, epoch)
	var (
		reply strings.Builder
		first = true
	)
	enqueue := func(p phrase.Phrase) {
		if !r.coord.Enqueue(p) {
			r.metrics.RecordPhrase(ctx, "rejected")
			log.Debug("responder: phrase dropped, response was interrupted", "text", p.Text)
			return
		}
		if first {
			first = false
			r.metrics.LLMFirstPhrase.Record(ctx, time.Since(start).Seconds())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("responder: stream: %w", ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return "", fmt.Errorf("responder: stream: %w", err)
				}
				return finish(seg, &reply, enqueue), nil
			}
			if chunk.FinishReason == llm.FinishReasonError {
				return "", fmt.Errorf("responder: stream: %w", errors.New(chunk.Text))
			}
			reply.WriteString(chunk.Text)
			for _, p := range seg.Push(chunk.Text) {
				enqueue(p)
			}
			if chunk.FinishReason != "" {
				return finish(seg, &reply, enqueue), nil
			}
		}
	}
}

func finish(seg *phrase.Segmenter, reply *strings.Builder, enqueue func(phrase.Phrase)) string {
	if p, ok := seg.Flush(); ok {
		enqueue(p)
	}
	return reply.String()
}

func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
