package reply

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ganz677/wb/internal/domain"
)

const (
	availableLimit = 80
	preferredLimit = 5
	excludeLimit   = 10
	emptyField     = "—"
)

// BuildPrompt renders the user message for the backend: the item facts plus
// the allowed, preferred and forbidden recommendation blocks.
func BuildPrompt(req domain.ReplyRequest) string {
	rating := emptyField
	if req.Rating != nil {
		rating = strconv.Itoa(*req.Rating)
	}

	var b strings.Builder
	b.WriteString("ВХОД:\n")
	fmt.Fprintf(&b, "- Тип: %s\n", req.Kind)
	fmt.Fprintf(&b, "- Купленный аромат: %s\n", orDash(req.ProductTitle))
	fmt.Fprintf(&b, "- Текст клиента: %s\n", orDash(req.Text))
	fmt.Fprintf(&b, "- Оценка: %s\n\n", rating)

	b.WriteString("ТВОЯ ЗАДАЧА:\n")
	b.WriteString("- Учитывай купленный аромат, если он указан.\n")
	b.WriteString("- Рекомендации бери в первую очередь из блока \"ПРИОРИТЕТНЫЕ АЛЬТЕРНАТИВЫ\".\n")
	b.WriteString("- Рекомендуй только позиции из \"ДОСТУПНЫЕ АРОМАТЫ\".\n")
	b.WriteString("- Не предлагай позиции из \"НЕ РЕКОМЕНДОВАТЬ\".\n")
	b.WriteString("- Не повторяй одну и ту же формулировку для разных клиентов.\n\n")

	b.WriteString(block("ДОСТУПНЫЕ АРОМАТЫ", Dedup(req.Available, availableLimit)))
	if preferred := Dedup(req.Preferred, preferredLimit); len(preferred) > 0 {
		b.WriteString("\n\n")
		b.WriteString(block("ПРИОРИТЕТНЫЕ АЛЬТЕРНАТИВЫ (используй в первую очередь)", preferred))
	}
	if exclude := Dedup(req.Exclude, excludeLimit); len(exclude) > 0 {
		b.WriteString("\n\n")
		b.WriteString(block("НЕ РЕКОМЕНДОВАТЬ", exclude))
	}

	return strings.TrimSpace(b.String())
}

func block(title string, lines []string) string {
	if len(lines) == 0 {
		return title + ":\n" + emptyField
	}
	return title + ":\n- " + strings.Join(lines, "\n- ")
}

func orDash(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return emptyField
}
