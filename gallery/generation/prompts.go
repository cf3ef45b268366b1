package generation

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	questionSystemPrompt = "你是精準的視覺助理。請根據圖片提出『一個』具體可答的問題，避免主觀揣測。以繁體中文。"
	questionUserPrompt   = "請只輸出問題一句話。"

	answerSystemPrompt = "你是一位自然親切、知識穩健的助理。" +
		"請以自然語氣作答，像在與使用者對話，不使用任何標題或固定格式。" +
		"回答時不得提及或暗示資訊來源（例如『從圖片可見』『根據文字內容』『依照提示』等），" +
		"也不要提到系統、規則、模型或任何技術性詞彙。" +
		"先清楚回答問題；若有助理解且允許補充，可自然加入背景脈絡，使用不確定語氣（如『可能、一般來說、或許』），" +
		"避免對特定人事時地物做未經證實的斷言。" +
		"當你要引入新的地名、人物或主題，而這些資訊並未在問題或文字中明確出現時，" +
		"請務必在前面加上自然的承接句，使敘事流暢。例如：" +
		"『這樣的地貌在東部山區的河谷也常見，例如和平溪流域就是其中之一』，" +
		"或『若場景接近山區地帶，像和平溪這樣的河床也有類似特徵』。" +
		"請確保整段文字聽起來連貫、口語、沒有突兀轉折。" +
		"最後可用一句自然的話詢問對方是否想更深入了解。"

	backgroundAllowed = "可適度補充背景"
	backgroundDenied  = "僅回答問題，不另外補充"

	// FallbackAnswer is used whenever an answer cannot be generated.
	FallbackAnswer = "文字未提供相關資訊。"

	fallbackScene = "場景"
)

// FallbackQuestion builds the template question used when the image cannot be
// sent to a vision model.
func FallbackQuestion(imagePath string) string {
	name := ""
	if imagePath != "" {
		name = filepath.Base(imagePath)
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fallbackScene
	}
	return fmt.Sprintf("這張圖所呈現的「%s」中，最具代表性的元素是什麼？", name)
}

// answerUserPrompt wraps the question and the record text.
func answerUserPrompt(question, text string, background bool) string {
	hint := backgroundDenied
	if background {
		hint = backgroundAllowed
	}

	var b strings.Builder
	b.WriteString("【風格】自然、清楚、口語且不生硬；避免任何透露來源的語句。\n")
	b.WriteString("【背景補充】" + hint + "\n")
	b.WriteString("【問題】\n" + question + "\n\n")
	b.WriteString("【可用內容】\n" + text + "\n\n")
	b.WriteString("直接寫成流暢的一段或數段文字，不要提到『圖片』『文字』『提示』或『系統』。")
	return b.String()
}
