package prompt

import (
	"strings"
	"testing"
)

func TestGenerateWithoutContext(t *testing.T) {
	if got := Generate("What are the office hours?", ""); got != "What are the office hours?" {
		t.Errorf("Generate() = %q, want message unchanged", got)
	}
}

func TestGenerateWithContext(t *testing.T) {
	got := Generate("What are the office hours?", "Office hours: 9am-5pm weekdays.")

	for _, want := range []string{
		"Please answer the following question using the context provided below.",
		"Context:\nOffice hours: 9am-5pm weekdays.\n\nQuestion:\nWhat are the office hours?\n\n",
		"under 320 characters",
		"inform the user that you don't have the information",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "Context:") > strings.Index(got, "Question:") {
		t.Error("context must come before the question")
	}
}

func TestSystemPromptMentionsLimit(t *testing.T) {
	if !strings.Contains(SystemPrompt, "320 characters") {
		t.Errorf("SystemPrompt = %q", SystemPrompt)
	}
}
