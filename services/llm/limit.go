package llmsvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/generate"
)

// Limited throttles the requests sent to a model & bounds their duration.
type Limited struct {
	next    generate.Model
	limiter *rate.Limiter
	timeout time.Duration
}

var _ generate.Model = (*Limited)(nil)

// NewLimited allows `perMinute` requests per minute (unlimited if <= 0), each one lasting at most `timeout`.
func NewLimited(next generate.Model, perMinute int, timeout time.Duration) *Limited {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute / 10
		if burst < 1 {
			burst = 1
		}
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Generate(ctx context.Context, req generate.Request) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "waiting for rate limiter")
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.next.Generate(ctx, req)
}

// NewModel returns the rate limited model named by `model`.
func NewModel(ctx context.Context, conf core.LLMConfig, model string) (generate.Model, error) {
	g, err := NewGemini(ctx, conf.APIKey, model)
	if err != nil {
		return nil, err
	}
	return NewLimited(g, conf.RequestsPerMinute, conf.Timeout), nil
}
