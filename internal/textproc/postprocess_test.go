package textproc

import (
	"strings"
	"testing"
)

func TestPostProcessJapaneseWithAutoPunctuation(t *testing.T) {
	got := PostProcess("今日は晴れです そして散歩に行きます", "ja", true)
	if want := "今日は晴れです そして散歩に行きます。"; got != want {
		t.Fatalf("PostProcess() = %q, want %q", got, want)
	}
}

func TestPostProcessJapaneseWithoutAutoPunctuation(t *testing.T) {
	got := PostProcess("今日は晴れです そして散歩に行きます", "ja", false)
	if want := "今日は晴れです そして散歩に行きます"; got != want {
		t.Fatalf("PostProcess() = %q, want %q", got, want)
	}
}

func TestPostProcessDoesNotDuplicateJapaneseComma(t *testing.T) {
	got := PostProcess("こういったものは除外するか、またはそもそも入らないようにしたい", "ja", true)
	if want := "こういったものは除外するか、またはそもそも入らないようにしたい。"; got != want {
		t.Fatalf("PostProcess() = %q, want %q", got, want)
	}
	if strings.Contains(got, "、、") {
		t.Fatalf("doubled comma in %q", got)
	}
}

func TestPostProcessJapanesePunctuation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "comma before connective", in: "雨が降ったしかし出かけた", want: "雨が降った、しかし出かけた。"},
		{name: "connective at start", in: "そして終わりです", want: "そして終わりです。"},
		{name: "ascii marks mapped", in: "はい, 分かりました. 本当?", want: "はい、分かりました。本当？"},
		{name: "repeated marks collapsed", in: "すごい!!", want: "すごい！"},
		{name: "comma before period", in: "終わり、.", want: "終わり。"},
		{name: "existing exclamation kept", in: "やった!", want: "やった！"},
		{name: "correction applied", in: "これはペンですい", want: "これはペンです。"},
		{name: "longer correction first", in: "行きましたい", want: "行きました。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PostProcess(tt.in, "ja", true); got != tt.want {
				t.Errorf("PostProcess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPostProcessEnglishPreservesDecimalsAndEmail(t *testing.T) {
	got := PostProcess("The value is 3.14 and contact is a.b@example.com now", "en", true)

	if !strings.Contains(got, "3.14") || !strings.Contains(got, "a.b@example.com") {
		t.Fatalf("tokens altered: %q", got)
	}
	if strings.Contains(got, "3. 14") || strings.Contains(got, "a. b@example. com") {
		t.Fatalf("dots split: %q", got)
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("missing terminal period: %q", got)
	}
}

func TestPostProcessEnglishSpacing(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "hello , world", want: "hello, world."},
		{in: "wait   what ?", want: "wait what?"},
		{in: "one.  two", want: "one. two."},
		{in: "done!", want: "done!"},
	}

	for _, tt := range tests {
		if got := PostProcess(tt.in, "en", true); got != tt.want {
			t.Errorf("PostProcess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPostProcessCorrectionsWithoutPunctuation(t *testing.T) {
	got := PostProcess("  そうですい \n  行きますい  ", "ja", false)
	if want := "そうです 行きます"; got != want {
		t.Fatalf("PostProcess() = %q, want %q", got, want)
	}
}

func TestPostProcessEmpty(t *testing.T) {
	if got := PostProcess("", "ja", true); got != "" {
		t.Fatalf("PostProcess(\"\") = %q", got)
	}
	if got := PostProcess("   ", "en", true); got != "" {
		t.Fatalf("PostProcess(blank) = %q, want empty", got)
	}
}
