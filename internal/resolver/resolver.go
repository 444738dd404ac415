// Package resolver turns raw link URLs into executable targets, performing
// the external key exchange where a rule asks for one.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
	"github.com/cwygoda/linkbatch/internal/registry"
)

// Resolver implements domain.Resolver.
type Resolver struct {
	registry  *registry.Registry
	exchanger domain.KeyExchanger
	attempts  int
	delay     time.Duration
	timeout   time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRetry sets the key-exchange attempt budget, the pause between
// attempts and the per-attempt timeout.
func WithRetry(attempts int, delay, timeout time.Duration) Option {
	return func(r *Resolver) {
		if attempts > 0 {
			r.attempts = attempts
		}
		r.delay = delay
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithSleep replaces the inter-attempt wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Resolver) { r.sleep = fn }
}

// New creates a resolver. exchanger may be nil, in which case key-exchange
// rules always degrade.
func New(reg *registry.Registry, exchanger domain.KeyExchanger, opts ...Option) *Resolver {
	r := &Resolver{
		registry:  reg,
		exchanger: exchanger,
		attempts:  2,
		delay:     2 * time.Second,
		timeout:   15 * time.Second,
		sleep:     sleepContext,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve applies the pattern registry and, for key-exchange rules, trades
// the URL for a playable one. It always returns a target with a non-empty
// FinalURL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, rc domain.RuleContext) domain.ResolvedTarget {
	res := r.registry.Rewrite(rawURL, rc)

	target := domain.ResolvedTarget{
		OriginalURL: rawURL,
		FinalURL:    res.FinalURL,
		Strategy:    res.Strategy,
		Format:      res.Format,
		Rule:        res.Rule,
	}
	switch res.Strategy {
	case domain.StrategyEncryptedStream:
		target.EncryptionKey = res.EncryptionKey
	case domain.StrategyDRMKeyed:
		target.KeyMaterial = res.KeyMaterial
	}

	if !res.KeyExchange {
		return target
	}

	kx, ok := r.exchange(ctx, res.FinalURL, rc)
	if !ok {
		r.logger.Warn("key exchange exhausted, falling back to direct download",
			"url", rawURL, "rule", res.Rule, "attempts", r.attempts)
		return degrade(rawURL, res.Rule, rc)
	}

	target.FinalURL = kx.URL
	target.Strategy = domain.StrategyDRMKeyed
	target.KeyMaterial = kx.Keys
	target.Format = registry.FormatFor(kx.URL, rc.Quality)
	return target
}

func (r *Resolver) exchange(ctx context.Context, u string, rc domain.RuleContext) (domain.KeyExchange, bool) {
	if r.exchanger == nil {
		return domain.KeyExchange{}, false
	}

	token := ""
	if registry.IsValidToken(rc.Token) {
		token = rc.Token
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		kx, err := r.exchanger.Exchange(actx, u, token)
		cancel()

		if err == nil && kx.URL != "" && len(kx.Keys) > 0 {
			return kx, true
		}
		if err == nil {
			err = domain.ErrKeyExchangeMiss
		}
		r.logger.Warn("key exchange attempt failed", "url", u, "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			return domain.KeyExchange{}, false
		}
		if attempt < r.attempts {
			if err := r.sleep(ctx, r.delay); err != nil {
				return domain.KeyExchange{}, false
			}
		}
	}
	return domain.KeyExchange{}, false
}

func degrade(rawURL, rule string, rc domain.RuleContext) domain.ResolvedTarget {
	return domain.ResolvedTarget{
		OriginalURL: rawURL,
		FinalURL:    rawURL,
		Strategy:    domain.StrategyGeneric,
		Format:      registry.FormatFor(rawURL, rc.Quality),
		Rule:        rule,
		Degraded:    true,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
