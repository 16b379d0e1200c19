package generation

import (
	"fmt"
	"strings"

	"github.com/bookworm-ai/bookworm/internal/storage"
)

// historyTurns is how many recent conversation turns the prompt carries.
const historyTurns = 4

const groundedSystem = `You are an expert teaching assistant for the textbook 'Physical AI and Humanoid Robotics'.
Answer the student's question using the provided context from the textbook.
When you use information from the context, cite it inline as [Chapter X: Section Name].
If the context does not contain enough information to answer, say so and answer from general knowledge without inventing citations.`

const generalSystem = `You are an expert teaching assistant for the textbook 'Physical AI and Humanoid Robotics'.
The textbook context for this question is unavailable, so answer from your general knowledge of robotics and physical AI.
Do not invent textbook citations.`

// BuildPrompt renders the user prompt for a grounded answer: recent history,
// the assembled context block, and the question.
func BuildPrompt(question, context string, history []storage.Message) string {
	var b strings.Builder

	if recent := lastTurns(history, historyTurns); len(recent) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(m.Role), m.Content)
		}
		b.WriteString("\n")
	}

	if context != "" {
		b.WriteString("Context:\n")
		b.WriteString(context)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer (with citations):")
	return b.String()
}

// BuildGeneralPrompt is BuildPrompt without a context block or the citation
// instruction, used when retrieval produced nothing.
func BuildGeneralPrompt(question string, history []storage.Message) string {
	var b strings.Builder

	if recent := lastTurns(history, historyTurns); len(recent) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(m.Role), m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Answer:")
	return b.String()
}

func lastTurns(history []storage.Message, n int) []storage.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
