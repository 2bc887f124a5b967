// Package llmtest 提供确定性的 llm.Completer 测试替身
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sprintmail/internal/llm"
)

// Rule 当最后一条消息包含 Match 时返回 Reply 或 Err
type Rule struct {
	Match string
	Reply string
	Err   error
}

// Call 记录一次调用
type Call struct {
	Messages []llm.Message
	Options  llm.Options
}

// Prompt 返回最后一条消息内容
func (c Call) Prompt() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

// Scripted 按规则顺序匹配，未命中时返回 Default
type Scripted struct {
	mu      sync.Mutex
	rules   []Rule
	Default string
	calls   []Call
}

func NewScripted(rules ...Rule) *Scripted {
	return &Scripted{rules: rules}
}

// On 追加一条回复规则
func (s *Scripted) On(match, reply string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, Rule{Match: match, Reply: reply})
	return s
}

// Fail 追加一条失败规则
func (s *Scripted) Fail(match string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, Rule{Match: match, Err: fmt.Errorf("%w: scripted failure", llm.ErrProviderFailure)})
	return s
}

func (s *Scripted) Complete(_ context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := Call{Messages: append([]llm.Message(nil), messages...), Options: opts}
	s.calls = append(s.calls, call)

	prompt := call.Prompt()
	for _, r := range s.rules {
		if strings.Contains(prompt, r.Match) {
			if r.Err != nil {
				return nil, r.Err
			}
			return &llm.Response{Content: r.Reply}, nil
		}
	}
	return &llm.Response{Content: s.Default}, nil
}

// Calls 返回所有调用记录的副本
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsMatching 返回提示词包含 substr 的调用
func (s *Scripted) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if strings.Contains(c.Prompt(), substr) {
			out = append(out, c)
		}
	}
	return out
}
