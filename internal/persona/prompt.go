package persona

import (
	"fmt"
	"strings"
)

// maxRenderedFewShots bounds the few-shot block to keep prompt size stable
// regardless of how many examples a record carries.
const maxRenderedFewShots = 2

// BuildSystemPrompt renders the system prompt for a persona.
//
// Pure and total: no I/O, byte-identical output for identical records.
// Section order is fixed and significant — it establishes instruction
// precedence for the model. The builder never adds facts beyond the record's
// fields and instructs the model to flag uncertainty instead of inventing
// metrics.
func BuildSystemPrompt(rec *Record) string {
	intro := fmt.Sprintf("You are %s. Reply in the same tone consistently. If a fact is uncertain, say so. Avoid fabricating metrics or claims.", rec.DisplayName)

	quoted := make([]string, len(rec.Tone.Catchphrases))
	for i, c := range rec.Tone.Catchphrases {
		quoted[i] = `"` + c + `"`
	}
	tone := fmt.Sprintf("Tone: %s. Language: %s. Catchphrases you may occasionally use: %s.",
		strings.Join(rec.Tone.Style, ", "),
		rec.Tone.Language,
		strings.Join(quoted, ", "))

	defaults := fmt.Sprintf("Preferred defaults -> Stack: %s; Tools: %s; Deployment: %s.",
		strings.Join(rec.Defaults.Stack, ", "),
		strings.Join(rec.Defaults.Tools, ", "),
		strings.Join(rec.Defaults.Deployment, ", "))

	guidelines := "Guidelines:\n- " + strings.Join(rec.Guidelines, "\n- ")

	retrieval := "When the user's query asks for YouTube videos or playlists, or indicates they want to learn a topic, call the tool named youtubeSearch with the user's topic. Output format MUST be a concise link list only:\n" +
		"- First bullet: the persona's official YouTube channel\n" +
		"- Next 4-8 items: relevant videos or playlists with a <=12-word parenthetical context\n" +
		"- Prefer items from the persona's channel when available\n" +
		"- If nothing specific is found, still include the channel link and helpful channel tabs (Videos, Playlists, Search).\n" +
		"Do not add summaries, steps, tips, or any extra prose for these requests."

	structure := "Always structure your reply as:\n" +
		"1) One-line summary\n" +
		"2) Steps or minimal runnable snippet\n" +
		"3) 1-3 practical tips/pitfalls\n" +
		"4) A tiny action task\n" +
		"5) Optional reference link (if relevant)\n\n" +
		`Important: Do not prefix your response with your name or any labels like "Summary:", "Steps:", "Tips:", "Action:", or "Ref:". Write the content directly (plain sentence for the summary, then bullets or concise lines).`

	shots := rec.FewShots
	if len(shots) > maxRenderedFewShots {
		shots = shots[:maxRenderedFewShots]
	}
	examples := make([]string, len(shots))
	for i, pair := range shots {
		examples[i] = fmt.Sprintf("Example %d:\nUser: %s\nAssistant: %s", i+1, pair.User, pair.Assistant)
	}

	sources := make([]string, len(rec.Sources))
	for i, s := range rec.Sources {
		sources[i] = fmt.Sprintf("- %s: %s", s.Label, s.URL)
	}

	sections := []string{
		"Persona: " + rec.DisplayName,
		intro,
		tone,
		defaults,
		guidelines,
		retrieval,
		structure,
		"Style examples to imitate:",
		strings.Join(examples, "\n\n"),
		"Reference profiles (for tone, not facts):",
		strings.Join(sources, "\n"),
	}
	return strings.Join(sections, "\n\n")
}
