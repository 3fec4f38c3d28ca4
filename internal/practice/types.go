package practice

// Question types the service knows how to grade. The set is open on the
// read side: stored batches may carry types added later.
const (
	TypeSingleChoice = "single_choice"
	TypeShortAnswer  = "short_answer"
	TypeCode         = "code"
)

// GenerateRequest carries the section a batch is generated from.
type GenerateRequest struct {
	SessionID        string `json:"sessionId"`
	UserID           string `json:"userId"`
	SectionID        string `json:"sectionId"`
	BookName         string `json:"bookName"`
	BookIntroduction string `json:"bookIntroduction"`
	SectionContent   string `json:"sectionContent"`
}

type Option struct {
	OptionID string `json:"optionId"`
	Text     string `json:"text"`
}

type GeneratedQuestion struct {
	QuestionID string   `json:"questionId"`
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Options    []Option `json:"options,omitempty"`
}

type GenerateResult struct {
	Summary   string              `json:"summary"`
	Questions []GeneratedQuestion `json:"questions"`
}

// SubmittedAnswer is one answer as the client sent it. The declared type
// may be stale; the type stored with the latest generation batch is
// authoritative.
type SubmittedAnswer struct {
	QuestionID string `json:"questionId"`
	Type       string `json:"type"`
	Answer     string `json:"answer"`
}

type VerifyRequest struct {
	SessionID string            `json:"sessionId"`
	UserID    string            `json:"userId"`
	SectionID string            `json:"sectionId"`
	Questions []SubmittedAnswer `json:"questions"`
}

// UserAnswer mirrors sessionlog.UserAnswer on the API surface: exactly
// one field set, keyed by the stored question type.
type UserAnswer struct {
	SelectedOptionID string `json:"selectedOptionId,omitempty"`
	AnswerText       string `json:"answerText,omitempty"`
	CodeText         string `json:"codeText,omitempty"`
}

type VerifiedQuestion struct {
	QuestionID    string     `json:"questionId"`
	Type          string     `json:"type"`
	IsCorrect     bool       `json:"isCorrect"`
	UserAnswer    UserAnswer `json:"userAnswer"`
	CorrectAnswer string     `json:"correctAnswer"`
	Parsing       string     `json:"parsing"`
}

type VerifyResult struct {
	Questions []VerifiedQuestion `json:"questions"`
}
