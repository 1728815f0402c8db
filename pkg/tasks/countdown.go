package tasks

import (
	"fmt"
	"time"
)

// ExpiredText 截止后显示的文本
const ExpiredText = "Expirado"

// Remaining renders the countdown shown next to a task. A nil deadline has
// no countdown; a deadline at or before now is ExpiredText.
func Remaining(deadline *time.Time, now time.Time) string {
	if deadline == nil {
		return ""
	}
	diff := deadline.Sub(now)
	if diff <= 0 {
		return ExpiredText
	}

	days := int(diff / (24 * time.Hour))
	hours := int(diff/time.Hour) % 24
	minutes := int(diff/time.Minute) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("Termina en: %dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("Termina en: %dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("Termina en: %dm", minutes)
	}
}
