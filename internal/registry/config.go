package registry

import (
	"fmt"
	"regexp"

	"github.com/cwygoda/linkbatch/internal/config"
	"github.com/cwygoda/linkbatch/internal/domain"
)

// FromConfig builds a rule from a [[rules]] table.
func FromConfig(rc config.RuleConfig) (Rule, error) {
	re, err := regexp.Compile(rc.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: invalid pattern %q: %w", rc.Name, rc.Pattern, err)
	}

	strategy := domain.StrategyGeneric
	if rc.Strategy != "" {
		s, ok := domain.ParseStrategy(rc.Strategy)
		if !ok {
			return Rule{}, fmt.Errorf("rule %q: unknown strategy %q", rc.Name, rc.Strategy)
		}
		strategy = s
	}
	if rc.KeyExchange {
		strategy = domain.StrategyDRMKeyed
	}
	if strategy == domain.StrategyDRMKeyed && !rc.KeyExchange {
		return Rule{}, fmt.Errorf("rule %q: strategy %q needs key_exchange = true", rc.Name, rc.Strategy)
	}

	return Rule{
		Name:  rc.Name,
		Match: re.MatchString,
		Rewrite: func(u string, _ domain.RuleContext) domain.RewriteResult {
			final := u
			if rc.Replace != "" {
				final = re.ReplaceAllString(u, rc.Replace)
			}
			if strategy == domain.StrategyEncryptedStream {
				return encryptedStream(final)
			}
			return domain.RewriteResult{
				FinalURL:    final,
				Strategy:    strategy,
				KeyExchange: rc.KeyExchange,
			}
		},
	}, nil
}

// FromSettings builds the full registry from configuration.
func FromSettings(cfg *config.Config) (*Registry, error) {
	var configured []Rule
	for _, rc := range cfg.Rules {
		rule, err := FromConfig(rc)
		if err != nil {
			return nil, err
		}
		configured = append(configured, rule)
	}

	remaps := append([]HostRemap(nil), DefaultRemaps...)
	for _, rm := range cfg.Remaps {
		remaps = append(remaps, HostRemap{Name: rm.Name, Legacy: rm.Legacy, Current: rm.Current, Separator: rm.Separator})
	}
	return New(Builtins(configured, remaps)...), nil
}
