package rag

import (
	"fmt"
	"strings"
)

// DefaultMaxGroundingChunks caps how many retrieved chunks reach the prompt.
const DefaultMaxGroundingChunks = 3

const instruction = "You are a helpful AI assistant. Answer the user's question based on the provided context. " +
	"If the context doesn't contain relevant information, say so politely."

// BuildPrompt renders the grounding prompt: instruction, at most maxChunks
// numbered context chunks, then the question.
func BuildPrompt(question string, chunks []RetrievalResult, maxChunks int) string {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxGroundingChunks
	}
	if len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\n")
	if len(chunks) > 0 {
		b.WriteString("Based on the following information:\n\n")
		for i, c := range chunks {
			fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, c.Content)
		}
	}
	b.WriteString("\nUser Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// FailureMessage is the assistant text shown when generation fails.
func FailureMessage(err error) string {
	return "I apologize, but I encountered an error while generating a response: " + err.Error()
}

// ChatTitle derives a chat title from the first message.
func ChatTitle(message string) string {
	const maxTitle = 50
	message = strings.TrimSpace(message)
	if r := []rune(message); len(r) > maxTitle {
		return string(r[:maxTitle])
	}
	return message
}
