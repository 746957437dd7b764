// Package tokens оценивает расход токенов через BPE (tiktoken).
//
// Используется адаптерами, когда сервер не вернул usage.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/ilkoid/poncho-react/pkg/llm"
	"github.com/ilkoid/poncho-react/pkg/utils"
)

var (
	encOnce sync.Once
	enc     tokenizer.Codec
)

// codec возвращает singleton o200k_base (fallback cl100k_base).
// nil если ни один словарь не загрузился.
func codec() tokenizer.Codec {
	encOnce.Do(func() {
		var err error
		enc, err = tokenizer.Get(tokenizer.O200kBase)
		if err != nil {
			enc, err = tokenizer.Get(tokenizer.Cl100kBase)
			if err != nil {
				utils.Warn("tiktoken encoder unavailable, using length heuristic", "error", err)
				enc = nil
			}
		}
	})
	return enc
}

// Count возвращает число токенов в тексте.
func Count(text string) int {
	if text == "" {
		return 0
	}
	c := codec()
	if c == nil {
		// ~4 символа на токен
		return (len(text) + 3) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

// CountMessage оценивает одно сообщение по конвенции OpenAI:
// 4 служебных токена на сообщение плюс содержимое.
func CountMessage(m llm.Message) int {
	n := 4 + Count(m.Content) + Count(string(m.Role))
	for _, tc := range m.ToolCalls {
		n += 3 + Count(tc.Name) + Count(tc.Args)
	}
	if m.ToolCallID != "" {
		n += Count(m.ToolCallID)
	}
	return n
}

// CountMessages оценивает prompt целиком (+3 на priming ответа).
func CountMessages(msgs []llm.Message) int {
	n := 3
	for _, m := range msgs {
		n += CountMessage(m)
	}
	return n
}

// Estimate строит TokenUsage для запроса и ответа.
func Estimate(prompt []llm.Message, completion string, calls []llm.ToolCall) llm.TokenUsage {
	p := CountMessages(prompt)
	c := Count(completion)
	for _, tc := range calls {
		c += Count(tc.Name) + Count(tc.Args)
	}
	return llm.TokenUsage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}
