package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

const judgeContextDocs = 3

func buildClassifyPrompt(question string) string {
	return `Classify the following question as 'simple' or 'complex'.

Simple: factual questions, definitions, single concepts.
Complex: comparative, analytical or multi-part questions that need a deep explanation.

Question: ` + question + `

Answer ONLY with 'simple' or 'complex':`
}

func numberedDocuments(documents []string) string {
	var b strings.Builder
	for idx, doc := range documents {
		if idx > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Document %d: %s", idx+1, doc)
	}
	return b.String()
}

func buildGeneratePrompt(question string, documents []string) string {
	return fmt.Sprintf(`You answer questions using only the documents provided.

INSTRUCTIONS:
- Answer ONLY from the documents below
- If the information is not in the documents, say so clearly
- Be precise and complete
- Use examples from the documents when relevant

DOCUMENTS:
%s

QUESTION: %s

ANSWER:`, numberedDocuments(documents), question)
}

func buildJudgePrompt(question, generation string, documents []string) string {
	if len(documents) > judgeContextDocs {
		documents = documents[:judgeContextDocs]
	}
	return fmt.Sprintf(`Rate the quality of the answer below on a scale from 0 to 1.

CRITERIA:
- Relevance: does the answer address the question?
- Completeness: is the answer complete enough?
- Accuracy: is the answer grounded in the documents?

QUESTION: %s

AVAILABLE DOCUMENTS:
%s

ANSWER:
%s

Reply ONLY with a number between 0 and 1 (e.g. 0.85):`, question, strings.Join(documents, "\n"), generation)
}

func buildRefinePrompt(question, previous string, score float64, documents []string) string {
	return fmt.Sprintf(`You need to IMPROVE the previous answer, which received a quality score of %.2f.

PREVIOUS ANSWER:
%s

IMPROVEMENT INSTRUCTIONS:
- Use more detail from the documents
- Be more precise and complete
- Add relevant examples
- Stay focused on the question

DOCUMENTS:
%s

QUESTION: %s

IMPROVED ANSWER:`, score, previous, numberedDocuments(documents), question)
}

func formatHistory(messages []domain.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		speaker := "User"
		if msg.Role == domain.RoleAssistant {
			speaker = "Assistant"
		}
		lines = append(lines, speaker+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

func buildFollowUpPrompt(history []domain.Message, question string) string {
	return fmt.Sprintf(`Decide whether the current question is a follow-up to the conversation or a new, standalone question.

RECENT HISTORY:
%s

CURRENT QUESTION: %s

A follow-up question:
- uses pronouns (it, that, this, they)
- uses demonstratives (this one, that one)
- implicitly refers to the previous topic
- asks for more detail about the previous answer
- starts with "And...?", "But...", "Also..."

Answer ONLY 'yes' (follow-up) or 'no' (new question):`, formatHistory(history), question)
}

func buildExpandPrompt(history []domain.Message, question string) string {
	return fmt.Sprintf(`Rewrite the follow-up question as a complete, standalone question that carries the context it needs from the conversation history.

CONVERSATION HISTORY:
%s

FOLLOW-UP QUESTION: %s

INSTRUCTIONS:
- Replace pronouns with the specific entities
- Make the question understandable without the history
- Keep the original intent
- Be concise but complete

EXPANDED QUESTION:`, formatHistory(history), question)
}

func buildClarityPrompt(question string) string {
	return `Decide whether the following question is clear enough or needs clarification.

QUESTION: ` + question + `

A question needs clarification when:
- it is too vague or generic
- it has several plausible interpretations
- essential context is missing

Answer ONLY 'yes' (needs clarification) or 'no' (it is clear):`
}

func buildClarificationPrompt(question string) string {
	return `Write one polite, specific clarification question that helps the user rephrase their question more clearly.

VAGUE QUESTION: ` + question + `

CLARIFICATION QUESTION:`
}
