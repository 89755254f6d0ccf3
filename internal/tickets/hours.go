package tickets

import "time"

// Business hours are fixed: Mon–Fri, 9:00–18:00 local time.
func inBusinessHours(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return now.Hour() >= 9 && now.Hour() < 18
}

// contactHint tells the resident when to expect a call back.
func contactHint(now time.Time) string {
	if inBusinessHours(now) {
		return "С вами свяжутся в ближайшее время."
	}
	return "С вами свяжутся в рабочее время (пн–пт с 9:00 до 18:00)."
}
