package env

import (
	"golang.org/x/text/language"
)

// Internationalization resolves a message for a locale. Providers expose
// their localized names, descriptions and labels through it.
type Internationalization func(locale language.Tag) string

// Message resolves the message for the locale. A nil Internationalization
// yields the empty string.
func (i Internationalization) Message(locale language.Tag) string {
	if i == nil {
		return ""
	}
	return i(locale)
}

// Text returns an Internationalization that ignores the locale.
func Text(message string) Internationalization {
	return func(language.Tag) string {
		return message
	}
}

// Localized returns an Internationalization choosing the best match among
// the translations. The fallback locale is used when nothing matches; a
// missing fallback translation yields the empty string.
func Localized(fallback language.Tag, translations map[language.Tag]string) Internationalization {
	tags := []language.Tag{fallback}
	for tag := range translations {
		if tag != fallback {
			tags = append(tags, tag)
		}
	}
	matcher := language.NewMatcher(tags)

	return func(locale language.Tag) string {
		_, index, confidence := matcher.Match(locale)
		if confidence == language.No {
			return translations[fallback]
		}
		return translations[tags[index]]
	}
}
