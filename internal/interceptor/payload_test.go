package interceptor

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/promptlens/pkg/models"
)

func TestClassifyShapes(t *testing.T) {
	var nilChat *models.ChatRequest
	tests := []struct {
		name  string
		arg   any
		shape Shape
		model string
	}{
		{"chat messages", []models.ChatMessage{{Role: models.RoleUser}}, ShapeMessageList, ""},
		{"openai messages", []openai.ChatCompletionMessage{}, ShapeMessageList, ""},
		{"anthropic messages", []anthropic.MessageParam{}, ShapeMessageList, ""},
		{"map messages", []map[string]any{{"role": "user"}}, ShapeMessageList, ""},
		{"chat request", models.ChatRequest{Model: "m1"}, ShapeMessagesObject, "m1"},
		{"chat request pointer", &models.ChatRequest{Model: "m2"}, ShapeMessagesObject, "m2"},
		{"nil chat request pointer", nilChat, ShapeUnrecognized, ""},
		{"openai request", openai.ChatCompletionRequest{Model: openai.GPT4o}, ShapeMessagesObject, openai.GPT4o},
		{"anthropic params", anthropic.MessageNewParams{Model: anthropic.Model("claude-x")}, ShapeMessagesObject, "claude-x"},
		{"completion request", models.CompletionRequest{Model: "c1"}, ShapePromptObject, "c1"},
		{"openai completion", &openai.CompletionRequest{Model: "davinci"}, ShapePromptObject, "davinci"},
		{"decoded message array", []any{map[string]any{"role": "user", "content": "x"}}, ShapeMessageList, ""},
		{"map with messages", map[string]any{"model": "mm", "messages": []any{}}, ShapeMessagesObject, "mm"},
		{"map with prompt", map[string]any{"prompt": "x"}, ShapePromptObject, ""},
		{"map without either", map[string]any{"model": "only"}, ShapeUnrecognized, "only"},
		{"string", "just text", ShapeUnrecognized, ""},
		{"nil", nil, ShapeUnrecognized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Classify(tt.arg)
			if p.Shape() != tt.shape {
				t.Fatalf("Shape() = %v, want %v", p.Shape(), tt.shape)
			}
			if p.Model() != tt.model {
				t.Fatalf("Model() = %q, want %q", p.Model(), tt.model)
			}
		})
	}
}

func TestSubstituteChatMessagesFirstUserOnly(t *testing.T) {
	original := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleUser, Content: "second"},
	}
	got := Classify(original).Substitute("variant").([]models.ChatMessage)

	if got[0].Content != "sys" || got[1].Content != "variant" || got[2].Content != "second" {
		t.Fatalf("substituted = %+v", got)
	}
	if original[1].Content != "first" {
		t.Fatal("original slice was mutated")
	}
}

func TestSubstituteWithoutUserMessage(t *testing.T) {
	original := []models.ChatMessage{{Role: models.RoleSystem, Content: "sys"}}
	got := Classify(original).Substitute("variant").([]models.ChatMessage)
	if len(got) != 1 || got[0].Content != "sys" {
		t.Fatalf("substituted = %+v", got)
	}
}

func TestSubstituteRequestPointerIsCopied(t *testing.T) {
	req := &openai.ChatCompletionRequest{
		Model:    openai.GPT4o,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "orig"}},
	}
	got := Classify(req).Substitute("variant").(*openai.ChatCompletionRequest)

	if got == req {
		t.Fatal("expected a new request")
	}
	if got.Messages[0].Content != "variant" || got.Model != openai.GPT4o {
		t.Fatalf("substituted = %+v", got)
	}
	if req.Messages[0].Content != "orig" {
		t.Fatal("original request was mutated")
	}
}

func TestSubstituteAnthropicParams(t *testing.T) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model("claude-x"),
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("orig")),
		},
	}
	got := Classify(params).Substitute("variant").(anthropic.MessageNewParams)

	block := got.Messages[0].Content[0]
	if block.OfText == nil || block.OfText.Text != "variant" {
		t.Fatalf("substituted content = %+v", got.Messages[0].Content)
	}
	if params.Messages[0].Content[0].OfText.Text != "orig" {
		t.Fatal("original params were mutated")
	}
	if got.MaxTokens != 64 {
		t.Fatalf("MaxTokens = %d", got.MaxTokens)
	}
}

func TestSubstitutePromptObjects(t *testing.T) {
	req := models.CompletionRequest{Model: "c", Prompt: "orig"}
	got := Classify(req).Substitute("variant").(models.CompletionRequest)
	if got.Prompt != "variant" || req.Prompt != "orig" {
		t.Fatalf("got %+v, original %+v", got, req)
	}

	oreq := openai.CompletionRequest{Model: "davinci", Prompt: "orig"}
	ogot := Classify(oreq).Substitute("variant").(openai.CompletionRequest)
	if ogot.Prompt != "variant" {
		t.Fatalf("openai prompt = %v", ogot.Prompt)
	}
}

func TestSubstituteMaps(t *testing.T) {
	msgs := []any{
		map[string]any{"role": "system", "content": "sys"},
		map[string]any{"role": "user", "content": "orig"},
	}
	obj := map[string]any{"model": "m", "messages": msgs}
	got := Classify(obj).Substitute("variant").(map[string]any)

	gotMsgs := got["messages"].([]any)
	if gotMsgs[1].(map[string]any)["content"] != "variant" {
		t.Fatalf("substituted = %+v", gotMsgs)
	}
	if msgs[1].(map[string]any)["content"] != "orig" {
		t.Fatal("original message map was mutated")
	}

	prompt := map[string]any{"prompt": "orig", "temperature": 0.2}
	gotPrompt := Classify(prompt).Substitute("variant").(map[string]any)
	if gotPrompt["prompt"] != "variant" || prompt["prompt"] != "orig" || gotPrompt["temperature"] != 0.2 {
		t.Fatalf("got %+v, original %+v", gotPrompt, prompt)
	}
}

func TestSubstituteDecodedMessageArray(t *testing.T) {
	var msgs []any
	if err := json.Unmarshal([]byte(`[{"role":"system","content":"sys"},{"role":"user","content":"old"},{"role":"user","content":"later"}]`), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}

	p := Classify(msgs)
	if p.Shape() != ShapeMessageList {
		t.Fatalf("Shape() = %v, want %v", p.Shape(), ShapeMessageList)
	}
	got := p.Substitute("new").([]any)
	if got[1].(map[string]any)["content"] != "new" {
		t.Fatalf("user message = %+v", got[1])
	}
	if got[2].(map[string]any)["content"] != "later" || got[0].(map[string]any)["content"] != "sys" {
		t.Fatalf("other messages changed: %+v", got)
	}
	if msgs[1].(map[string]any)["content"] != "old" {
		t.Fatal("original message array was mutated")
	}
}

func TestUnrecognizedPassesThrough(t *testing.T) {
	if got := Classify(42).Substitute("variant"); got != 42 {
		t.Fatalf("Substitute() = %v, want 42", got)
	}
}

func TestShapeString(t *testing.T) {
	if ShapeMessagesObject.String() != "messages_object" || Shape(99).String() != "unrecognized" {
		t.Fatal("unexpected shape names")
	}
}
