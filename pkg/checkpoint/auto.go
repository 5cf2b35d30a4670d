package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
)

// AutoApprover answers GO for requests whose domain matches a trusted pattern
// and defers everything else to the next gate.
type AutoApprover struct {
	patterns []glob.Glob
	next     Gate
}

// NewAutoApprover compiles domain globs such as "*.example.com".
// Patterns are matched case-insensitively against Request.Domain.
func NewAutoApprover(domains []string, next Gate) (*AutoApprover, error) {
	a := &AutoApprover{next: next}
	for _, pattern := range domains {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, fmt.Errorf("invalid auto-approve pattern '%s': %w", pattern, err)
		}
		a.patterns = append(a.patterns, g)
	}
	return a, nil
}

// Matches reports whether domain is trusted.
func (a *AutoApprover) Matches(domain string) bool {
	domain = strings.ToLower(domain)
	if domain == "" {
		return false
	}
	for _, g := range a.patterns {
		if g.Match(domain) {
			return true
		}
	}
	return false
}

// RequestApproval implements Gate.
func (a *AutoApprover) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	if a.Matches(req.Domain) {
		slog.Debug("checkpoint: auto-approved", "domain", req.Domain, "step", req.StepID)
		return GO, nil
	}
	if a.next == nil {
		return NotGO, nil
	}
	return a.next.RequestApproval(ctx, req)
}
