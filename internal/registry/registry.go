// Package registry holds the ordered URL pattern table that maps raw links to
// retrieval strategies.
package registry

import (
	"log/slog"

	"github.com/cwygoda/linkbatch/internal/domain"
)

// Rule is one row of the pattern table. Rewrite must be a pure function of
// its inputs.
type Rule struct {
	Name    string
	Match   func(url string) bool
	Rewrite func(url string, rc domain.RuleContext) domain.RewriteResult
}

// Registry holds rules in priority order.
type Registry struct {
	rules []Rule
}

// New creates a registry with the given rules, highest priority first.
func New(rules ...Rule) *Registry {
	r := &Registry{}
	for _, rule := range rules {
		r.Register(rule)
	}
	return r
}

// Register appends a rule with the lowest priority so far.
func (r *Registry) Register(rule Rule) {
	r.rules = append(r.rules, rule)
}

// Match returns the first rule that matches the URL.
func (r *Registry) Match(url string) (Rule, bool) {
	for _, rule := range r.rules {
		if safeMatch(rule, url) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Rules returns all registered rules in evaluation order.
func (r *Registry) Rules() []Rule {
	return r.rules
}

// Rewrite applies the first matching rule. It never fails: no match, a
// panicking rule, or an empty result all yield the identity rewrite.
func (r *Registry) Rewrite(url string, rc domain.RuleContext) domain.RewriteResult {
	rule, ok := r.Match(url)
	if !ok {
		return Identity(url, rc)
	}
	res, ok := safeRewrite(rule, url, rc)
	if !ok || res.FinalURL == "" {
		return Identity(url, rc)
	}
	res.Rule = rule.Name
	if res.Strategy == "" {
		res.Strategy = domain.StrategyGeneric
	}
	if res.Format == "" {
		res.Format = FormatFor(res.FinalURL, rc.Quality)
	}
	return res
}

// Identity is the generic no-op rewrite.
func Identity(url string, rc domain.RuleContext) domain.RewriteResult {
	return domain.RewriteResult{
		Rule:     "identity",
		FinalURL: url,
		Strategy: domain.StrategyGeneric,
		Format:   FormatFor(url, rc.Quality),
	}
}

func safeMatch(rule Rule, url string) (matched bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("rule match panicked", "rule", rule.Name, "panic", p)
			matched = false
		}
	}()
	return rule.Match(url)
}

func safeRewrite(rule Rule, url string, rc domain.RuleContext) (res domain.RewriteResult, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("rule rewrite panicked", "rule", rule.Name, "panic", p)
			ok = false
		}
	}()
	return rule.Rewrite(url, rc), true
}
