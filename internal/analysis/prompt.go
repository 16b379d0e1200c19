package analysis

import "fmt"

const analysisSystemPrompt = `You classify questions asked about a robotics textbook. Respond with JSON only.`

func buildAnalysisPrompt(question string) string {
	return fmt.Sprintf(`Analyze the following question and respond with a JSON object with these fields:
- "intent": the user's goal, e.g. "information_request", "clarification", "example_request"
- "question_type": one of "conceptual", "factual", "code-related", "comparison", "procedural"
- "keywords": up to 5 key terms from the question
- "complexity": one of "simple", "moderate", "complex"

Question: %s`, question)
}
