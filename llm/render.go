package llm

import "strings"

// Renderer turns a structured conversation into a single prompt string
type Renderer interface {
	Render(conversation Conversation) (string, error)
}

// Mistral instruction delimiters
const (
	instOpen  = "[INST] "
	instClose = " [/INST]"
	endOfTurn = "</s>"
)

// MistralInstruct renders conversations with the Mistral instruction format.
// System and user turns are buffered and joined by newlines inside one
// [INST] block; each assistant turn closes the block and ends with </s>.
// A trailing buffer becomes an open [INST] block awaiting the answer.
type MistralInstruct struct{}

// Render implements Renderer
func (MistralInstruct) Render(conversation Conversation) (string, error) {
	if err := conversation.Validate(); err != nil {
		return "", err
	}

	var (
		prompt strings.Builder
		buffer []string
	)
	for _, turn := range conversation {
		content := strings.TrimSpace(turn.Content)
		if turn.Role != RoleAssistant {
			buffer = append(buffer, content)
			continue
		}
		prompt.WriteString(instOpen + strings.Join(buffer, "\n") + instClose)
		prompt.WriteString(" " + content + endOfTurn)
		buffer = buffer[:0]
	}
	if len(buffer) > 0 {
		prompt.WriteString(instOpen + strings.Join(buffer, "\n") + instClose)
	}
	return prompt.String(), nil
}

// StopSequences returns the markers that end a generated answer
func (MistralInstruct) StopSequences() []string {
	return []string{endOfTurn, "[INST]"}
}
