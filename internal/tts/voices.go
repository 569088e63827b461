package tts

import "strings"

// SelectVoice picks the best voice for spoken feedback. Preference order:
// a voice matching the language whose name contains one of the preferred
// names, then any voice matching the language, then the first voice.
// Returns ErrNoVoices when the list is empty; callers fall back to the
// engine default in that case rather than staying silent.
func SelectVoice(voices []Voice, lang string, preferredNames []string) (Voice, error) {
	if len(voices) == 0 {
		return Voice{}, ErrNoVoices
	}

	for _, v := range voices {
		if matchesLang(v, lang) && matchesName(v, preferredNames) {
			return v, nil
		}
	}
	for _, v := range voices {
		if matchesLang(v, lang) {
			return v, nil
		}
	}
	return voices[0], nil
}

func matchesLang(v Voice, lang string) bool {
	if lang == "" {
		return true
	}
	voiceLang := strings.ToLower(strings.ReplaceAll(v.Lang, "_", "-"))
	return strings.HasPrefix(voiceLang, strings.ToLower(lang))
}

func matchesName(v Voice, names []string) bool {
	lower := strings.ToLower(v.Name)
	for _, name := range names {
		if strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}
