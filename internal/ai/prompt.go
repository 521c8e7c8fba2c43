// Package ai turns a character definition and conversation history into an
// in-character reply from one of the supported LLM providers.
package ai

import (
	"strings"

	"github.com/tbourn/persona-chat-backend/internal/domain"
)

// DefaultPersonality is used when a character's personality is empty or not
// one of the known tags.
const DefaultPersonality = "friendly"

// historyWindow is how many history entries are rendered into the prompt.
const historyWindow = 5

var personalityTemplates = map[string]string{
	"friendly": "You are warm, approachable and genuinely interested in the people you talk to. " +
		"You speak with kindness and enthusiasm, offer encouragement, and make others feel comfortable and welcome.",
	"mysterious": "You are enigmatic and intriguing. You reveal information slowly, speak in hints and riddles when it suits you, " +
		"and always leave the other person wanting to know more.",
	"wise": "You are thoughtful, patient and insightful. You draw on deep experience, offer perspective rather than quick answers, " +
		"and often guide others to discover the answer themselves.",
	"playful": "You are lighthearted, witty and full of energy. You love jokes, wordplay and games, " +
		"and you keep conversations fun without being dismissive.",
	"sarcastic": "You have a dry, sharp sense of humor and a talent for ironic remarks. " +
		"Beneath the sarcasm you still care, and you never become genuinely cruel.",
	"romantic": "You are affectionate, poetic and emotionally expressive. You notice small details, " +
		"speak tenderly, and value connection above everything.",
	"adventurous": "You are bold, curious and always ready for the next challenge. " +
		"You tell vivid stories, encourage risk-taking, and see every conversation as a journey.",
	"intellectual": "You are analytical, precise and endlessly curious about ideas. " +
		"You enjoy debate, explain complex topics clearly, and back your views with reasoning.",
	"villainous": "You are cunning, confident and theatrical. You scheme openly, relish a clever threat, " +
		"and treat every exchange as a contest of wits, while never encouraging real-world harm.",
	"shy": "You are gentle, soft-spoken and a little hesitant. You open up slowly, " +
		"apologize more than you need to, and are deeply sincere once you feel comfortable.",
	"confident": "You are self-assured, decisive and direct. You speak with conviction, " +
		"take the lead in conversations, and inspire others to trust themselves.",
	"caring": "You are nurturing, empathetic and protective. You check in on how others feel, " +
		"listen closely, and offer comfort before advice.",
}

// PersonalityTemplate returns the base text for a personality tag, falling
// back to the friendly template for unknown tags.
func PersonalityTemplate(personality string) string {
	if tpl, ok := personalityTemplates[strings.ToLower(strings.TrimSpace(personality))]; ok {
		return tpl
	}
	return personalityTemplates[DefaultPersonality]
}

// BuildSystemPrompt renders the system prompt for character given the
// conversation history (oldest first). It is pure and deterministic.
func BuildSystemPrompt(c *domain.Character, history []domain.Message) string {
	var b strings.Builder

	b.WriteString("You are ")
	b.WriteString(c.Name)
	if d := strings.TrimSpace(c.Description); d != "" {
		b.WriteString(", ")
		b.WriteString(strings.TrimRight(d, "."))
	}
	b.WriteString(".\n\n")

	b.WriteString("PERSONALITY:\n")
	b.WriteString(PersonalityTemplate(c.Personality))
	b.WriteString("\n\n")

	if bg := strings.TrimSpace(c.Background); bg != "" {
		b.WriteString("BACKGROUND:\n")
		b.WriteString(bg)
		b.WriteString("\n\n")
	}

	if len(c.Traits) > 0 {
		b.WriteString("TRAITS: ")
		b.WriteString(strings.Join(c.Traits, ", "))
		b.WriteString("\n\n")
	}

	if style := strings.TrimSpace(c.SpeakingStyle); style != "" {
		b.WriteString("SPEAKING STYLE:\n")
		b.WriteString(style)
		b.WriteString("\n\n")
	}

	b.WriteString("GUIDELINES:\n")
	b.WriteString("- Always stay in character as " + c.Name + ". Never say you are an AI or a language model.\n")
	b.WriteString("- Keep responses conversational, between 1 and 3 paragraphs.\n")
	b.WriteString("- If asked about something " + c.Name + " would not know, respond in character and handle it gracefully.\n")
	b.WriteString("- Remember details the user shares and refer back to them naturally.\n\n")

	if len(history) > 0 {
		start := 0
		if len(history) > historyWindow {
			start = len(history) - historyWindow
		}
		b.WriteString("RECENT CONVERSATION:\n")
		for _, m := range history[start:] {
			if m.Role == domain.RoleUser {
				b.WriteString("Human: ")
			} else {
				b.WriteString(c.Name + ": ")
			}
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond as " + c.Name + ":")
	return b.String()
}
