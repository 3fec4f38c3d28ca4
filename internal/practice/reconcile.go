package practice

import (
	"fmt"
	"strings"

	"ai-practice/internal/sessionlog"
)

var typeLabels = map[string]string{
	TypeSingleChoice: "multiple choice",
	TypeShortAnswer:  "short answer",
	TypeCode:         "coding",
}

// reconciled bridges one submitted answer batch with the latest stored
// generation batch.
type reconciled struct {
	// promptBody is the question-by-question text the grading call needs.
	promptBody string
	// types maps question id to the authoritative stored type.
	types map[string]string
	// userAnswers maps question id to the typed answer shape.
	userAnswers map[string]sessionlog.UserAnswer
	// raw maps question id to the submitted answer text.
	raw map[string]string
}

// reconcileAnswers resolves every submitted answer against the latest
// generation batch. The stored question content and type win over
// whatever the client declared.
func reconcileAnswers(batch []sessionlog.Question, submitted []SubmittedAnswer) (reconciled, error) {
	byID := make(map[string]sessionlog.Question, len(batch))
	for _, q := range batch {
		byID[q.QuestionID] = q
	}

	rec := reconciled{
		types:       make(map[string]string, len(submitted)),
		userAnswers: make(map[string]sessionlog.UserAnswer, len(submitted)),
		raw:         make(map[string]string, len(submitted)),
	}
	var body strings.Builder
	for _, sub := range submitted {
		q, ok := byID[sub.QuestionID]
		if !ok {
			return reconciled{}, fmt.Errorf("%w: %s", ErrUnknownQuestion, sub.QuestionID)
		}
		if q.Content == "" {
			return reconciled{}, fmt.Errorf("%w: %s", ErrMissingContent, q.QuestionID)
		}
		rec.types[q.QuestionID] = q.Type
		rec.userAnswers[q.QuestionID] = typedUserAnswer(q.Type, sub.Answer)
		rec.raw[q.QuestionID] = sub.Answer
		renderQuestion(&body, q, sub.Answer)
	}
	rec.promptBody = body.String()
	return rec, nil
}

func renderQuestion(b *strings.Builder, q sessionlog.Question, answer string) {
	label, ok := typeLabels[q.Type]
	if !ok {
		label = q.Type
	}
	fmt.Fprintf(b, "Question %s (%s):\n%s\n", q.QuestionID, label, q.Content)
	if q.Type == TypeSingleChoice {
		b.WriteString("Options:\n")
		for _, opt := range q.Options {
			fmt.Fprintf(b, "%s. %s\n", opt.OptionID, opt.Text)
		}
	}
	fmt.Fprintf(b, "\nSubmitted answer:\n%s\n\n", answer)
}

// typedUserAnswer builds the answer shape for the STORED question type.
// Unrecognized types degrade to plain answer text rather than failing.
func typedUserAnswer(storedType, answer string) sessionlog.UserAnswer {
	switch storedType {
	case TypeSingleChoice:
		return sessionlog.UserAnswer{SelectedOptionID: answer}
	case TypeCode:
		return sessionlog.UserAnswer{CodeText: answer}
	default:
		return sessionlog.UserAnswer{AnswerText: answer}
	}
}

func apiUserAnswer(ua sessionlog.UserAnswer) UserAnswer {
	return UserAnswer{
		SelectedOptionID: ua.SelectedOptionID,
		AnswerText:       ua.AnswerText,
		CodeText:         ua.CodeText,
	}
}
