package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"fall-detector-go/pkg/models"
)

// minAnswerLength ответы короче считаются пустыми и заменяются шаблоном
const minAnswerLength = 50

// Generator текстовая языковая модель
type Generator interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int32) (string, error)
}

// GeminiGenerator генерация через Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator создает клиента Gemini
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string, maxTokens int32) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleModel),
		Temperature:       genai.Ptr(float32(0.7)),
		MaxOutputTokens:   maxTokens,
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return strings.ReplaceAll(resp.Text(), "*", ""), nil
}

// Advisor рекомендации по уходу: через языковую модель, если она настроена, иначе по шаблону
type Advisor struct {
	gen       Generator
	maxTokens int32
	logger    *logrus.Logger
}

// NewAdvisor gen может быть nil
func NewAdvisor(gen Generator, maxTokens int, logger *logrus.Logger) *Advisor {
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return &Advisor{gen: gen, maxTokens: int32(maxTokens), logger: logger}
}

// Enabled подключена ли языковая модель
func (a *Advisor) Enabled() bool { return a.gen != nil }

// Advise короткая рекомендация по одному событию падения.
// Ошибка модели возвращается вызывающему, шаблон используется только без модели.
func (a *Advisor) Advise(ctx context.Context, payload models.AlertPayload) (string, error) {
	if a.gen == nil {
		return EventFallback(payload), nil
	}
	prompt, err := EventPrompt(payload)
	if err != nil {
		return "", err
	}
	text, err := a.gen.Generate(ctx, systemPrompt, prompt, a.maxTokens*2)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return EventFallback(payload), nil
	}
	return text, nil
}

// Summarize итоговый разбор сессии; всегда возвращает текст
func (a *Advisor) Summarize(ctx context.Context, events []models.FallEvent) string {
	if len(events) == 0 {
		return SessionFallback(Summary{})
	}
	summary := Summarize(events)
	if a.gen == nil {
		return SessionFallback(summary)
	}

	text, err := a.gen.Generate(ctx, systemPrompt, SessionPrompt(summary), a.maxTokens)
	if err != nil {
		a.logger.Warnf("Не удалось получить анализ сессии от модели: %v", err)
		return SessionFallback(summary)
	}
	text = strings.TrimSpace(text)
	if len(text) < minAnswerLength {
		return SessionFallback(summary)
	}
	return text
}
