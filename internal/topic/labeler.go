package topic

import (
	"context"
	"fmt"
	"strings"

	"github.com/TobiSchelling/NewsTopics/internal/llm"
)

// Labeler turns a topic's keywords into a short human-readable name.
type Labeler interface {
	Label(ctx context.Context, info Info) (string, error)
}

const labelPrompt = `다음은 뉴스 기사 묶음에서 추출한 대표 키워드입니다.
이 주제를 잘 나타내는 짧은 한국어 제목(15자 이내)을 만들어 주세요.

키워드: %s

Respond with JSON only: {"label": "..."}`

const maxLabelRunes = 40

// LLMLabeler labels topics with an LLM provider.
type LLMLabeler struct {
	provider  llm.Provider
	maxTokens int
}

// NewLLMLabeler creates a labeler.
func NewLLMLabeler(provider llm.Provider, maxTokens int) *LLMLabeler {
	if maxTokens <= 0 {
		maxTokens = 64
	}
	return &LLMLabeler{provider: provider, maxTokens: maxTokens}
}

func (l *LLMLabeler) Label(ctx context.Context, info Info) (string, error) {
	if len(info.Representation) == 0 {
		return "", fmt.Errorf("topic %d has no keywords", info.TopicID)
	}

	prompt := fmt.Sprintf(labelPrompt, strings.Join(info.Representation, ", "))
	text, err := l.provider.Generate(ctx, prompt, l.maxTokens)
	if err != nil {
		return "", err
	}

	label := strings.TrimSpace(text)
	var reply struct {
		Label string `json:"label"`
	}
	if err := llm.DecodeJSON(text, &reply); err == nil && reply.Label != "" {
		label = strings.TrimSpace(reply.Label)
	}
	label = strings.Trim(label, `"'`)
	if label == "" {
		return "", fmt.Errorf("empty label for topic %d", info.TopicID)
	}
	if r := []rune(label); len(r) > maxLabelRunes {
		label = string(r[:maxLabelRunes])
	}
	return label, nil
}
