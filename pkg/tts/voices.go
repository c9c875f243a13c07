package tts

// ElevenLabsVoices maps preset names to ElevenLabs voice IDs. All of them
// speak Indonesian through the multilingual models.
var ElevenLabsVoices = map[string]string{
	"charlotte": "XB0fDUnXU5powFXDhCwa", // warm, clear
	"aria":      "9BWtsMINqrJLrRacOk9x", // expressive
	"sarah":     "EXAVITQu4vr4xnSDxMaL", // soft
	"rachel":    "21m00Tcm4TlvDq8ikWAM", // calm
	"josh":      "TxGEqnHWrfWFTfGW9XjX", // deep
	"adam":      "pNInz6obpgDQGcFmaJgB", // deep, firm
}

// DefaultElevenLabsVoice is the default ElevenLabs preset.
const DefaultElevenLabsVoice = "aria"

// GoogleVoices maps preset names to Google Cloud voice names for id-ID.
var GoogleVoices = map[string]string{
	"wavenet-a":  "id-ID-Wavenet-A", // female
	"wavenet-b":  "id-ID-Wavenet-B", // male
	"wavenet-c":  "id-ID-Wavenet-C", // male
	"wavenet-d":  "id-ID-Wavenet-D", // female
	"standard-a": "id-ID-Standard-A",
	"standard-b": "id-ID-Standard-B",
}

// DefaultGoogleVoice is the default Google preset.
const DefaultGoogleVoice = "wavenet-a"

// ResolveVoice returns the provider voice for a preset name, or name
// unchanged when it is not a known preset.
func ResolveVoice(presets map[string]string, name string) string {
	if id, ok := presets[name]; ok {
		return id
	}
	return name
}
