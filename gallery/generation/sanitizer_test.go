package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_EmptyInput(t *testing.T) {
	s := NewSanitizer()
	assert.Equal(t, "", s.Sanitize(""))
}

func TestSanitizer_RemovesLeadingQualifier(t *testing.T) {
	s := NewSanitizer()

	out := s.Sanitize("根據圖片這是一棵樹。")

	assert.True(t, strings.HasSuffix(out, "這是一棵樹。"), out)
	assert.NotContains(t, out, "根據圖片")
}

func TestSanitizer_Cases(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clause closed by comma", "根據圖片中的內容，這是一棵松樹。", "這是一棵松樹。"},
		{"ai disclaimer", "作為一個AI語言模型，我無法確定。不過這是寺廟。", "我無法確定。不過這是寺廟。"},
		{"seen in picture", "從這張圖片中可以看到，河床很寬。", "河床很寬。"},
		{"text source", "這裡很熱鬧。根據提供的文字內容，它建於清朝。", "這裡很熱鬧。它建於清朝。"},
		{"prompt reference", "依照提示：答案是台北。", "答案是台北。"},
		{"summary phrase", "綜合以上資訊，這是老街。", "這是老街。"},
		{"as far as I know", "就我所知，這裡有溫泉。", "這裡有溫泉。"},
		{"english case insensitive", "According to the image, the bridge is red.", "the bridge is red."},
		{"english ai", "As an AI language model, I think it is a lake.", "I think it is a lake."},
		{"replacements", "總結來說，我推測這是廟。一般而言，廟很多。", "看起來這是廟。一般來說，廟很多。"},
		{"chained replacement", "我推測像是古蹟。", "看起來是古蹟。"},
		{"newlines and trailing blanks", "  第一段。  \n\n\n\n第二段。\t\n第三段。  ", "第一段。\n\n第二段。\n第三段。"},
		{"untouched", "這是一座橋。", "這是一座橋。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(tt.in))
		})
	}
}

func TestSanitizer_DeeplyNestedQualifier(t *testing.T) {
	s := NewSanitizer()

	in := strings.Repeat("根據圖", 40) + "片" + strings.Repeat("片", 39) + "這是樹。"

	assert.Equal(t, "這是樹。", s.Sanitize(in))
}

func TestSanitizer_StopsAtClauseNotSentence(t *testing.T) {
	s := NewSanitizer()

	out := s.Sanitize("作為一個AI語言模型，我無法確定。不過這是寺廟。")

	assert.Equal(t, "我無法確定。不過這是寺廟。", out)
	assert.True(t, strings.HasPrefix(out, "我無法確定。"), "clause after the comma is kept")
}

func TestSanitizer_Idempotent(t *testing.T) {
	s := NewSanitizer()

	inputs := []string{
		"",
		"   ",
		"根據圖片這是一棵樹。",
		"根據圖根據圖片x。片y。",
		"根據總結來說，圖片中的東西，是樹。",
		"就我總而言之，所知，沒有。",
		"作為作為AI，AI，你好。",
		"可以看出像是山。",
		"a\n\n\n \n\n\nb",
		"基於提供的資訊，According to the text, 這是溪。",
		"According to the based on the image, picture, done.",
		"整體而言，整體來看，整體而言，。",
		strings.Repeat("根據圖", 40) + "片" + strings.Repeat("片", 39) + "這是樹。",
	}

	for _, in := range inputs {
		once := s.Sanitize(in)
		assert.Equal(t, once, s.Sanitize(once), "input %q", in)
	}
}
