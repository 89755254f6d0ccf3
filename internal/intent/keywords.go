package intent

import "strings"

// Keyword fallback for confirmation detection, used when the LLM call fails
// or returns garbage. Deliberately small: anything not on the lists is
// neither, which keeps the confirmation pending.
var (
	confirmKeywords = []string{
		"да", "ага", "верно", "подтверждаю", "все верно", "всё верно",
		"yes", "yep", "ok", "okay", "correct", "confirm",
	}
	denyKeywords = []string{
		"нет", "неверно", "не надо", "отмена", "отмени",
		"no", "nope", "cancel", "wrong",
	}
)

// genericClarifyQuestion is the fallback when completeness checking itself
// fails: ask for everything at once rather than guessing what is missing.
const genericClarifyQuestion = "Чтобы оформить заявку, напишите, пожалуйста, ваши фамилию и имя, адрес и суть проблемы."

func keywordVerdict(reply string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, ".,!…")

	for _, k := range denyKeywords {
		if normalized == k || strings.HasPrefix(normalized, k+" ") || strings.HasPrefix(normalized, k+",") {
			return VerdictDeny
		}
	}
	for _, k := range confirmKeywords {
		if normalized == k || strings.HasPrefix(normalized, k+" ") || strings.HasPrefix(normalized, k+",") {
			return VerdictConfirm
		}
	}
	return VerdictNeither
}
