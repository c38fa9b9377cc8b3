// Package dictionary loads the user's custom vocabulary and turns it into
// an initial prompt that biases recognition towards those terms.
package dictionary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

const (
	// MaxWords caps the normalized dictionary.
	MaxWords = 200
	// MaxPromptWords caps how many words are placed into the prompt.
	MaxPromptWords = 20
)

var basePrompts = map[string]string{
	"ja": "これは会話の文字起こしです。正確な日本語で出力してください。",
	"en": "This is a speech transcription. Please output accurate English.",
}

// Load reads the dictionary file. The file holds either {"words": [...]} or
// a bare array. A missing or unreadable file yields an empty list.
func Load(path string, logger *zap.SugaredLogger) []string {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnw("Failed to load user dictionary", "path", path, "error", err)
		}
		return nil
	}

	raw, err := decodeWords(data)
	if err != nil {
		logger.Warnw("Failed to load user dictionary", "path", path, "error", err)
		return nil
	}

	words := NormalizeWords(raw)
	logger.Debugw("Loaded user dictionary words", "count", len(words))
	return words
}

func decodeWords(data []byte) ([]any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}

	switch v := doc.(type) {
	case map[string]any:
		words, _ := v["words"].([]any)
		return words, nil
	case []any:
		return v, nil
	default:
		return nil, nil
	}
}

// NormalizeWords trims entries, collapses inner whitespace, drops non-string
// and empty values and removes case-insensitive duplicates, keeping the
// first spelling. At most MaxWords entries are returned.
func NormalizeWords[T any](words []T) []string {
	normalized := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))

	for _, w := range words {
		s, ok := any(w).(string)
		if !ok {
			continue
		}
		cleaned := strings.Join(strings.Fields(s), " ")
		if cleaned == "" {
			continue
		}
		key := foldKey(cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, cleaned)
		if len(normalized) >= MaxWords {
			break
		}
	}
	return normalized
}

func foldKey(s string) string {
	return strings.ToLower(strings.ToUpper(s))
}

// InitialPrompt builds the recognition prompt for language. It returns ""
// when there is neither a base prompt nor any word to list.
func InitialPrompt(language string, words []string) string {
	prompt := basePrompts[language]

	words = NormalizeWords(words)
	if len(words) > MaxPromptWords {
		words = words[:MaxPromptWords]
	}
	if len(words) > 0 {
		if language == "ja" {
			prompt += " 以下の単語や専門用語を正確に認識してください: " + strings.Join(words, "、") + "。"
		} else {
			prompt += " Please accurately recognize these terms: " + strings.Join(words, ", ") + "."
		}
	}
	return strings.TrimSpace(prompt)
}
