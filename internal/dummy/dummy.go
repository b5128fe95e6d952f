// Package dummy provides a scripted model provider for offline runs and tests.
//
// A script is a newline separated list of actions, consumed one per call; the last
// action repeats once the script is exhausted. Actions:
//
//	err:<class>          fail with an error of the given class
//	sleep:<ms>[:<text>]  wait (honoring the context) and then answer text
//	msg:<text>           answer text
//	msgb64:<base64>      answer the decoded text
//	<anything else>      answer the line verbatim, e.g. a SQL statement
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	ctxpkg "github.com/stupiduntilnot/querygate/internal/context"
	modelpkg "github.com/stupiduntilnot/querygate/internal/model"
)

const fallbackContent = "UNSUPPORTED"

type action struct {
	kind string
	arg  string
	ms   int
}

func parseScript(script string) ([]action, error) {
	var actions []action
	for _, line := range strings.Split(script, "\n") {
		token := strings.TrimSpace(line)
		if token == "" {
			continue
		}
		switch {
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			rest := strings.TrimPrefix(token, "sleep:")
			msPart, text, _ := strings.Cut(rest, ":")
			ms, err := strconv.Atoi(msPart)
			if err != nil || ms < 0 {
				return nil, fmt.Errorf("invalid dummy sleep action: %s", token)
			}
			actions = append(actions, action{kind: "sleep", arg: text, ms: ms})
		case strings.HasPrefix(token, "msgb64:"):
			raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, "msgb64:"))
			if err != nil {
				return nil, fmt.Errorf("dummy msgb64 decode failed: %w", err)
			}
			actions = append(actions, action{kind: "msg", arg: string(raw)})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		default:
			actions = append(actions, action{kind: "msg", arg: token})
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "msg", arg: fallbackContent})
	}
	return actions, nil
}

// Provider answers chat completions from a script.
type Provider struct {
	mu      sync.Mutex
	actions []action
	index   int
	calls   [][]ctxpkg.Message
}

// NewProvider parses script and returns a provider that replays it.
func NewProvider(script string) (*Provider, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Provider{actions: actions}, nil
}

func (p *Provider) next(messages []ctxpkg.Message) action {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]ctxpkg.Message(nil), messages...))
	if p.index >= len(p.actions) {
		return p.actions[len(p.actions)-1]
	}
	a := p.actions[p.index]
	p.index++
	return a
}

// Calls returns a copy of every message list the provider has received.
func (p *Provider) Calls() [][]ctxpkg.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]ctxpkg.Message(nil), p.calls...)
}

func (p *Provider) ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	a := p.next(messages)
	switch a.kind {
	case "err":
		return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		timer := time.NewTimer(time.Duration(a.ms) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return modelpkg.CompletionResponse{}, ctx.Err()
		case <-timer.C:
		}
		return modelpkg.CompletionResponse{Content: emptyAs(a.arg, fallbackContent), InputTokens: 1, OutputTokens: 1}, nil
	default:
		return modelpkg.CompletionResponse{Content: a.arg, InputTokens: 1, OutputTokens: 1}, nil
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
