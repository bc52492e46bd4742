package extract

import "unicode"

// detectLanguage is a script-count hint, not real language detection: a
// Cyrillic majority reads as "ru", a Latin majority as "en", anything else
// stays empty.
func detectLanguage(text string) string {
	latin := 0
	cyrillic := 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	total := latin + cyrillic
	if total == 0 {
		return ""
	}
	if cyrillic*2 > total {
		return "ru"
	}
	if latin*2 > total {
		return "en"
	}
	return ""
}
