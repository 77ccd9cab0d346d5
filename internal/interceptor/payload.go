package interceptor

import (
	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/promptlens/pkg/models"
)

// Shape names the argument layouts the interceptor knows how to rewrite.
type Shape int

const (
	ShapeUnrecognized Shape = iota
	ShapeMessageList
	ShapeMessagesObject
	ShapePromptObject
)

func (s Shape) String() string {
	switch s {
	case ShapeMessageList:
		return "message_list"
	case ShapeMessagesObject:
		return "messages_object"
	case ShapePromptObject:
		return "prompt_object"
	default:
		return "unrecognized"
	}
}

// Payload is the classified first argument of an intercepted call. The set of
// implementations is closed: MessageList, MessagesObject, PromptObject and
// Unrecognized.
type Payload interface {
	Shape() Shape
	// Model is the model named by the payload, or "".
	Model() string
	// Substitute returns a copy of the argument carrying prompt. The original
	// argument is never modified.
	Substitute(prompt string) any

	sealed()
}

type payload struct {
	model   string
	replace func(prompt string) any
}

func (p payload) Model() string                { return p.model }
func (p payload) Substitute(prompt string) any { return p.replace(prompt) }
func (payload) sealed()                        {}

// MessageList is a bare list of role/content messages; the first user
// message takes the prompt.
type MessageList struct{ payload }

// MessagesObject is a request object holding a message list.
type MessagesObject struct{ payload }

// PromptObject is a request object with a single prompt field.
type PromptObject struct{ payload }

// Unrecognized passes the argument through untouched.
type Unrecognized struct{ payload }

func (MessageList) Shape() Shape    { return ShapeMessageList }
func (MessagesObject) Shape() Shape { return ShapeMessagesObject }
func (PromptObject) Shape() Shape   { return ShapePromptObject }
func (Unrecognized) Shape() Shape   { return ShapeUnrecognized }

// Classify resolves arg to its payload shape.
func Classify(arg any) Payload {
	switch v := arg.(type) {
	case []models.ChatMessage:
		return MessageList{payload{replace: func(p string) any { return replaceChatMessages(v, p) }}}
	case []openai.ChatCompletionMessage:
		return MessageList{payload{replace: func(p string) any { return replaceOpenAIMessages(v, p) }}}
	case []anthropic.MessageParam:
		return MessageList{payload{replace: func(p string) any { return replaceAnthropicMessages(v, p) }}}
	case []map[string]any:
		return MessageList{payload{replace: func(p string) any { return replaceMapMessages(v, p) }}}
	case []any:
		return MessageList{payload{replace: func(p string) any { return replaceAnyMessages(v, p) }}}

	case models.ChatRequest:
		return MessagesObject{payload{model: v.Model, replace: func(p string) any {
			cp := v
			cp.Messages = replaceChatMessages(v.Messages, p)
			return cp
		}}}
	case *models.ChatRequest:
		if v == nil {
			break
		}
		return MessagesObject{payload{model: v.Model, replace: func(p string) any {
			cp := *v
			cp.Messages = replaceChatMessages(v.Messages, p)
			return &cp
		}}}
	case openai.ChatCompletionRequest:
		return MessagesObject{payload{model: v.Model, replace: func(p string) any {
			cp := v
			cp.Messages = replaceOpenAIMessages(v.Messages, p)
			return cp
		}}}
	case *openai.ChatCompletionRequest:
		if v == nil {
			break
		}
		return MessagesObject{payload{model: v.Model, replace: func(p string) any {
			cp := *v
			cp.Messages = replaceOpenAIMessages(v.Messages, p)
			return &cp
		}}}
	case anthropic.MessageNewParams:
		return MessagesObject{payload{model: string(v.Model), replace: func(p string) any {
			cp := v
			cp.Messages = replaceAnthropicMessages(v.Messages, p)
			return cp
		}}}
	case *anthropic.MessageNewParams:
		if v == nil {
			break
		}
		return MessagesObject{payload{model: string(v.Model), replace: func(p string) any {
			cp := *v
			cp.Messages = replaceAnthropicMessages(v.Messages, p)
			return &cp
		}}}

	case models.CompletionRequest:
		return PromptObject{payload{model: v.Model, replace: func(p string) any {
			cp := v
			cp.Prompt = p
			return cp
		}}}
	case *models.CompletionRequest:
		if v == nil {
			break
		}
		return PromptObject{payload{model: v.Model, replace: func(p string) any {
			cp := *v
			cp.Prompt = p
			return &cp
		}}}
	case openai.CompletionRequest:
		return PromptObject{payload{model: v.Model, replace: func(p string) any {
			cp := v
			cp.Prompt = p
			return cp
		}}}
	case *openai.CompletionRequest:
		if v == nil {
			break
		}
		return PromptObject{payload{model: v.Model, replace: func(p string) any {
			cp := *v
			cp.Prompt = p
			return &cp
		}}}

	case map[string]any:
		return classifyMap(v)
	}

	return Unrecognized{payload{replace: func(string) any { return arg }}}
}

// classifyMap handles decoded JSON objects: "messages" wins over "prompt".
func classifyMap(m map[string]any) Payload {
	model, _ := m["model"].(string)
	switch msgs := m["messages"].(type) {
	case []map[string]any:
		return MessagesObject{payload{model: model, replace: func(p string) any {
			cp := cloneMap(m)
			cp["messages"] = replaceMapMessages(msgs, p)
			return cp
		}}}
	case []any:
		return MessagesObject{payload{model: model, replace: func(p string) any {
			cp := cloneMap(m)
			cp["messages"] = replaceAnyMessages(msgs, p)
			return cp
		}}}
	}
	if _, ok := m["prompt"]; ok {
		return PromptObject{payload{model: model, replace: func(p string) any {
			cp := cloneMap(m)
			cp["prompt"] = p
			return cp
		}}}
	}
	return Unrecognized{payload{model: model, replace: func(string) any { return m }}}
}

// replaceFirst copies msgs and rewrites the first element isUser accepts.
func replaceFirst[T any](msgs []T, isUser func(T) bool, set func(T, string) T, prompt string) []T {
	if msgs == nil {
		return nil
	}
	out := make([]T, len(msgs))
	copy(out, msgs)
	for i, msg := range out {
		if isUser(msg) {
			out[i] = set(msg, prompt)
			break
		}
	}
	return out
}

func replaceChatMessages(msgs []models.ChatMessage, prompt string) []models.ChatMessage {
	return replaceFirst(msgs,
		func(m models.ChatMessage) bool { return m.Role == models.RoleUser },
		func(m models.ChatMessage, p string) models.ChatMessage { m.Content = p; return m },
		prompt)
}

func replaceOpenAIMessages(msgs []openai.ChatCompletionMessage, prompt string) []openai.ChatCompletionMessage {
	return replaceFirst(msgs,
		func(m openai.ChatCompletionMessage) bool { return m.Role == openai.ChatMessageRoleUser },
		func(m openai.ChatCompletionMessage, p string) openai.ChatCompletionMessage {
			m.Content = p
			m.MultiContent = nil
			return m
		},
		prompt)
}

func replaceAnthropicMessages(msgs []anthropic.MessageParam, prompt string) []anthropic.MessageParam {
	return replaceFirst(msgs,
		func(m anthropic.MessageParam) bool { return m.Role == anthropic.MessageParamRoleUser },
		func(m anthropic.MessageParam, p string) anthropic.MessageParam {
			m.Content = []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(p)}
			return m
		},
		prompt)
}

func replaceMapMessages(msgs []map[string]any, prompt string) []map[string]any {
	return replaceFirst(msgs,
		func(m map[string]any) bool { return m["role"] == "user" },
		func(m map[string]any, p string) map[string]any {
			cp := cloneMap(m)
			cp["content"] = p
			return cp
		},
		prompt)
}

func replaceAnyMessages(msgs []any, prompt string) []any {
	return replaceFirst(msgs,
		func(m any) bool {
			msg, ok := m.(map[string]any)
			return ok && msg["role"] == "user"
		},
		func(m any, p string) any {
			cp := cloneMap(m.(map[string]any))
			cp["content"] = p
			return cp
		},
		prompt)
}

func cloneMap(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
