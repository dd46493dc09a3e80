package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/redact"
)

type purposeKey struct{}

// WithPurpose tags ctx with what the LLM call is for ("quiz_question",
// "lesson_content"), which the logging decorator reports.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the purpose attached by WithPurpose, or "".
func PurposeFrom(ctx context.Context) string {
	p, _ := ctx.Value(purposeKey{}).(string)
	return p
}

// LoggingProvider is a decorator that logs every LLM request with latency
// and token usage.
type LoggingProvider struct {
	inner Provider
}

// WithLogging wraps a Provider with request logging.
func WithLogging(p Provider) Provider {
	return &LoggingProvider{inner: p}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	attrs := []any{
		"model", l.inner.ModelID(),
		"purpose", PurposeFrom(ctx),
		"latency_ms", time.Since(start).Milliseconds(),
	}
	if req.Schema != nil {
		attrs = append(attrs, "schema", req.Schema.Name)
	}

	log := logger.FromContext(ctx)
	if err != nil {
		log.Warn("llm request failed", append(attrs, redact.Attr(err))...)
		return nil, err
	}

	attrs = append(attrs,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)
	log.Log(ctx, slog.LevelDebug, "llm request completed", attrs...)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}
