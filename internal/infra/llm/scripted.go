package llm

import (
	"context"
	"fmt"
	"sync"
)

// Reply is one scripted outcome.
type Reply struct {
	Text string
	Err  error
}

// ScriptedProvider returns replies in order, then repeats the last one.
// With no replies it echoes the last user message.
type ScriptedProvider struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

// NewScriptedProvider creates a provider that replays replies.
func NewScriptedProvider(replies ...Reply) *ScriptedProvider {
	return &ScriptedProvider{replies: replies}
}

func (p *ScriptedProvider) Name() string {
	return "scripted"
}

func (p *ScriptedProvider) Generate(ctx context.Context, req Request) (Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.requests)
	p.requests = append(p.requests, req)

	if len(p.replies) == 0 {
		last := ""
		if len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1].Content
		}
		return Response{Text: fmt.Sprintf("[%s] %s", req.Model, last), Model: req.Model}, nil
	}

	r := p.replies[min(n, len(p.replies)-1)]
	if r.Err != nil {
		return Response{}, r.Err
	}
	return Response{Text: r.Text, Model: req.Model}, nil
}

// Requests returns every request seen so far.
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}
