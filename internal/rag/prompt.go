package rag

import "strings"

// SystemInstruction is sent with every answer-generation call.
const SystemInstruction = "You are a helpful assistant that answers questions based on the provided context."

// BuildPrompt renders the user message for answer generation. Each context
// becomes a "- " bullet and bullets are separated by a blank line.
func BuildPrompt(question string, contexts []string) string {
	bullets := make([]string, len(contexts))
	for i, c := range contexts {
		bullets[i] = "- " + c
	}

	var b strings.Builder
	b.WriteString("Use the following context to answer the question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(bullets, "\n\n"))
	b.WriteString("\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")
	b.WriteString("Answer concisely using the context above.")
	return b.String()
}
