// Package llmtest provides scripted text-generation clients for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/mikey/doc-router/internal/core"
)

// Reply is one scripted response
type Reply struct {
	Text string
	Err  error
}

// Script replays its replies in order. Once exhausted the last reply repeats.
type Script struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	calls   []core.CompletionRequest
}

// NewScript creates a client that answers with the given replies
func NewScript(replies ...Reply) *Script {
	return &Script{replies: replies}
}

// Text is shorthand for a script of successful replies
func Text(texts ...string) *Script {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return NewScript(replies...)
}

// Failing is shorthand for a script that always returns err
func Failing(err error) *Script {
	return NewScript(Reply{Err: err})
}

// Complete implements core.LLMClient
func (s *Script) Complete(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
	s.mu.Lock()
	s.calls = append(s.calls, *req)
	var reply Reply
	if len(s.replies) > 0 {
		idx := s.next
		if idx >= len(s.replies) {
			idx = len(s.replies) - 1
		}
		reply = s.replies[idx]
		s.next++
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &core.Completion{Text: reply.Text, Model: "scripted"}, nil
}

// Calls returns a copy of every request received so far
func (s *Script) Calls() []core.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CompletionRequest(nil), s.calls...)
}

// Func adapts a function to core.LLMClient
type Func func(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error)

// Complete implements core.LLMClient
func (f Func) Complete(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
	return f(ctx, req)
}

// ByTask answers each request with the reply registered for its task
func ByTask(replies map[string]Reply) Func {
	return func(ctx context.Context, req *core.CompletionRequest) (*core.Completion, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, ok := replies[req.Task]
		if !ok {
			return &core.Completion{Text: "{}", Model: "scripted"}, nil
		}
		if reply.Err != nil {
			return nil, reply.Err
		}
		return &core.Completion{Text: reply.Text, Model: "scripted"}, nil
	}
}
