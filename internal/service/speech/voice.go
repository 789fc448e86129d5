package speech

import "strings"

const (
	resourceDefault = "volc.service_type.10029"
	resourceMega    = "volc.megatts.default"
	resourceSeed    = "seed-tts-2.0"
)

// voiceAliases maps short names accepted in configuration to speaker ids.
var voiceAliases = map[string]string{
	"en_default": "en_female_amy_jupiter_bigtts",
	"en_female":  "en_female_amy_jupiter_bigtts",
	"en_male":    "en_male_adam_mars_bigtts",
	"en_us":      "en_female_amy_jupiter_bigtts",
	"en_gb":      "en_female_emily_mars_bigtts",
}

// seed-family speakers carry one of these markers in their id.
var seedHints = []string{
	"bigtts", "seed", "megatts", "uranus", "venus", "jupiter",
	"saturn", "neptune", "mercury", "pluto", "mars",
}

// NormalizeVoiceAlias resolves a configured voice name to a speaker id.
// Unknown names are returned trimmed.
func NormalizeVoiceAlias(voice string) string {
	voice = strings.TrimSpace(voice)
	if mapped, ok := voiceAliases[strings.ToLower(voice)]; ok {
		return mapped
	}
	return voice
}

// speakerCandidates lists the requested speaker then the fallback, resolved
// and without case-insensitive duplicates.
func speakerCandidates(requested, fallback string) []string {
	var out []string
	add := func(voice string) {
		voice = NormalizeVoiceAlias(voice)
		if voice == "" {
			return
		}
		for _, existing := range out {
			if strings.EqualFold(existing, voice) {
				return
			}
		}
		out = append(out, voice)
	}

	add(requested)
	add(fallback)
	return out
}

// resourceCandidates lists the TTS resource ids to try for speaker, most likely first.
func resourceCandidates(speaker string) []string {
	speaker = strings.TrimSpace(speaker)
	if strings.HasPrefix(speaker, "S_") {
		return []string{resourceMega}
	}

	lower := strings.ToLower(speaker)
	for _, hint := range seedHints {
		if lower != "" && strings.Contains(lower, hint) {
			return []string{resourceSeed, resourceDefault}
		}
	}
	return []string{resourceDefault, resourceSeed}
}

func isResourceMismatch(err error) bool {
	return err != nil && strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
