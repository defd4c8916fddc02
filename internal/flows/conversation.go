package flows

import (
	"context"
	"strings"

	"suraksha-jal/internal/prompt"
	"suraksha-jal/internal/schema"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ChatInput struct {
	History  []ChatMessage `json:"history,omitempty"`
	Message  string        `json:"message"`
	Language *string       `json:"language,omitempty"`
}

type ChatOutput struct {
	Reply string `json:"reply"`
}

var chatFlow = &Flow[ChatInput, ChatOutput]{
	Name: "healthChat",
	Input: schema.Object("chat turn",
		schema.Optional("history", schema.ArrayOf("Earlier messages, oldest first", schema.Object("message",
			schema.Required("role", schema.Enum("speaker", string(RoleUser), string(RoleModel))),
			schema.Required("content", schema.String("message text")),
		))),
		schema.Required("message", schema.Text("The new user message")),
		languageField(),
	),
	Output: schema.Object("assistant reply",
		schema.Required("reply", schema.Text("The assistant's answer")),
	),
	Template: prompt.MustNew("healthChat", `You are Suraksha Jal, a friendly assistant that answers questions about water safety, hygiene and common diseases.
Keep answers short and simple, and advise seeing a doctor for anything serious.
{{- if .History}}
Conversation so far:
{{range .History}}{{if eq .Role "model"}}Assistant{{else}}User{{end}}: {{.Content}}
{{end}}{{end}}
User: {{.Message}}
{{- with .Language}}
Respond in {{.}}.{{end}}`),
}

func (s *Service) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	out, err := chatFlow.Run(ctx, s.gen, in)
	if err != nil {
		return out, err
	}
	out.Reply = strings.TrimSpace(out.Reply)
	return out, nil
}

type TranslateInput struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

type TranslateOutput struct {
	TranslatedText string `json:"translatedText"`
}

var translateFlow = &Flow[TranslateInput, TranslateOutput]{
	Name: "translateText",
	Input: schema.Object("translation request",
		schema.Required("text", schema.Text("Text to translate")),
		schema.Required("targetLanguage", schema.Text("Language to translate into")),
	),
	Output: schema.Object("translation",
		schema.Required("translatedText", schema.Text("The translated text")),
	),
	Template: prompt.MustNew("translateText", `Translate the following text into {{.TargetLanguage}}. Keep medical terms accurate and return only the translation.
Text: {{.Text}}`),
}

func (s *Service) Translate(ctx context.Context, in TranslateInput) (TranslateOutput, error) {
	return translateFlow.Run(ctx, s.gen, in)
}
