// Package textproc finalizes raw recognition output: it repairs known
// recognition artifacts, normalizes whitespace and adds punctuation.
package textproc

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// corrections maps recognition artifacts to their intended text.
var corrections = map[string]string{
	"ですい":  "です",
	"ますい":  "ます",
	"でしたい": "でした",
	"ましたい": "ました",
}

// correctionKeys are ordered longest first so a shorter key never rewrites
// part of a longer match.
var correctionKeys = func() []string {
	keys := make([]string, 0, len(corrections))
	for k := range corrections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// connectives get a reading comma in front of them in Japanese output.
var connectives = []string{"そして", "しかし", "ただし", "また", "さらに", "なので", "だから"}

var (
	jaPunctuation   = strings.NewReplacer(",", "、", ".", "。", "!", "！", "?", "？")
	jaAroundMark    = regexp.MustCompile(`\s*([、。！？])\s*`)
	sentenceMark    = regexp.MustCompile(`\s*([,.!?])(?:\s+|$)`)
	multiSpace      = regexp.MustCompile(`\s{2,}`)
	jaTerminalMarks = []string{"。", "！", "？", "!", "?"}
	enTerminalMarks = []string{".", "!", "?"}
)

// PostProcess applies corrections and whitespace cleanup, then punctuation
// for the given language when autoPunctuation is set.
func PostProcess(text, language string, autoPunctuation bool) string {
	if text == "" {
		return text
	}

	for _, wrong := range correctionKeys {
		text = strings.ReplaceAll(text, wrong, corrections[wrong])
	}

	text = strings.Join(strings.Fields(text), " ")
	text = strings.ReplaceAll(text, "\n\n", "\n")
	text = strings.ReplaceAll(text, "\n ", "\n")

	if !autoPunctuation || text == "" {
		return text
	}
	if language == "ja" {
		return punctuateJapanese(text)
	}
	return punctuateDefault(text)
}

func punctuateJapanese(text string) string {
	text = jaPunctuation.Replace(text)
	text = jaAroundMark.ReplaceAllString(text, "$1")
	text = collapseRepeatedMarks(text)
	text = insertReadingCommas(text)
	text = strings.ReplaceAll(text, "、。", "。")

	if text != "" && !hasAnySuffix(text, jaTerminalMarks) {
		text += "。"
	}
	return text
}

// punctuateDefault spaces sentence punctuation. Only marks followed by
// whitespace or the end of text count, so decimals and e-mail addresses
// keep their dots.
func punctuateDefault(text string) string {
	text = strings.TrimSpace(sentenceMark.ReplaceAllString(text, "$1 "))
	text = multiSpace.ReplaceAllString(text, " ")
	if text != "" && !hasAnySuffix(text, enTerminalMarks) {
		text += "."
	}
	return text
}

func collapseRepeatedMarks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev rune
	for _, r := range text {
		if r == prev && isJapaneseMark(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// insertReadingCommas puts 、 before a connective unless it starts the text
// or already follows whitespace or punctuation.
func insertReadingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	var prev rune
	for i := 0; i < len(text); {
		if i > 0 && !unicode.IsSpace(prev) && !isPunctuation(prev) {
			if word := connectiveAt(text[i:]); word != "" {
				b.WriteString("、")
				b.WriteString(word)
				i += len(word)
				prev, _ = utf8.DecodeLastRuneInString(word)
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		b.WriteRune(r)
		prev = r
		i += size
	}
	return b.String()
}

func connectiveAt(s string) string {
	for _, word := range connectives {
		if strings.HasPrefix(s, word) {
			return word
		}
	}
	return ""
}

func isJapaneseMark(r rune) bool {
	switch r {
	case '、', '。', '！', '？':
		return true
	}
	return false
}

func isPunctuation(r rune) bool {
	return isJapaneseMark(r) || unicode.IsPunct(r)
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
