// Package prompt turns an inbound SMS into the text sent to the model and
// fits the model's answer back into SMS limits.
package prompt

import "fmt"

// SystemPrompt instructs the model to answer in at most two SMS segments.
const SystemPrompt = "You are an SMS chatbot. Keep responses concise and under 320 characters to fit in two SMS messages."

const contextTemplate = `Please answer the following question using the context provided below. 
Keep your response concise and suitable for SMS (under 320 characters).

Context:
%s

Question:
%s

Answer the question specifically referencing relevant information from the context. 
If the question cannot be answered using the context, inform the user that you don't have the information to answer their question.`

// Generate builds the user prompt. Without context the message is sent as is.
func Generate(message, context string) string {
	if context == "" {
		return message
	}
	return fmt.Sprintf(contextTemplate, context, message)
}
