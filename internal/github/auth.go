package github

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrAuth marks credential failures. The CLI maps it to exit code 3.
var ErrAuth = errors.New("github authentication failed")

// TokenProvider yields a bearer token on demand. Implementations must be
// safe for concurrent use.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	// Invalidate discards any cached token after a rejection, forcing the
	// next Token call to fetch a fresh one.
	Invalidate()
}

// CLITokenProvider obtains tokens from the GitHub CLI (`gh auth token`).
// No credentials are stored on disk by this program; the gh keyring owns
// them. The token is cached in memory until a request is rejected.
type CLITokenProvider struct {
	mu    sync.Mutex
	token string
}

// NewCLITokenProvider returns a provider backed by the gh CLI.
func NewCLITokenProvider() *CLITokenProvider {
	return &CLITokenProvider{}
}

// Token returns the cached token, or shells out to gh for a fresh one.
func (p *CLITokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}

	out, err := exec.CommandContext(ctx, "gh", "auth", "token").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: gh auth token: %s", ErrAuth, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%w: gh CLI not available (install from https://cli.github.com): %v", ErrAuth, err)
	}

	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", fmt.Errorf("%w: gh auth token returned nothing; run 'gh auth login'", ErrAuth)
	}
	p.token = token
	return token, nil
}

// Invalidate drops the cached token.
func (p *CLITokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// StaticTokenProvider serves a fixed token. Used by tests and CI setups
// that inject a token through the environment.
type StaticTokenProvider string

func (s StaticTokenProvider) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuth)
	}
	return string(s), nil
}

func (s StaticTokenProvider) Invalidate() {}
