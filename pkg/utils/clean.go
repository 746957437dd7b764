package utils

import (
	"encoding/json"
	"strings"
)

// CleanJsonBlock удаляет markdown-обёртку вокруг JSON.
//
// LLM часто возвращает JSON обёрнутым в markdown кодовые блоки:
//   ```json
//   {"key": "value"}
//   ```
//
// Примеры:
//   ```json {"a": 1} ``` → {"a": 1}
//   ``` {"a": 1} ``` → {"a": 1}
func CleanJsonBlock(s string) string {
	s = strings.TrimSpace(s)

	for _, prefix := range []string{"```json", "```JSON", "```Json", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// ExtractJSONObject достаёт JSON-объект из свободного текста модели.
//
// Сначала пробует весь текст (без markdown-обёртки) целиком,
// затем подстроку от первой '{' до последней '}'.
// Возвращает false если валидный объект не найден.
func ExtractJSONObject(s string) (string, bool) {
	cleaned := CleanJsonBlock(s)
	if isJSONObject(cleaned) {
		return cleaned, true
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}

	candidate := s[start : end+1]
	if isJSONObject(candidate) {
		return candidate, true
	}
	return "", false
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}

// Truncate обрезает строку до max рун для логов, не разрывая UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
