package sessionlog

import "encoding/json"

// Identity keys one session log: both parts are opaque strings supplied
// by the caller and immutable once a log exists.
type Identity struct {
	UserID    string
	SessionID string
}

// Meta is the first record of every session log. Absent fields stay empty
// strings; StartTime defaults to the current time and Version is always
// stamped by the store at write time.
type Meta struct {
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id"`
	BookName         string `json:"book_name"`
	BookIntroduction string `json:"book_introduction"`
	SectionID        string `json:"section_id"`
	SectionContent   string `json:"section_content"`
	Summary          string `json:"summary"`
	StartTime        string `json:"start_time"`
	Version          string `json:"version"`
}

// Known event types. The field is an open string: future event kinds may
// appear in logs without a store change.
const (
	EventGenerate = "generate"
	EventAnswer   = "answer"
	EventJudge    = "judge"
)

// EventRecord is one appended action. Data keeps the raw payload so the
// audit read path does not depend on the payload variants below.
type EventRecord struct {
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// GeneratePayload is the data of a generate event: the latency of the
// LLM call plus everything verification later needs to recover.
type GeneratePayload struct {
	LatencyMs int        `json:"latency_ms"`
	Summary   string     `json:"summary"`
	Questions []Question `json:"questions"`
}

// Question as persisted in a generation batch. Options are present only
// for single_choice questions.
type Question struct {
	QuestionID string   `json:"question_id"`
	Type       string   `json:"type"`
	Content    string   `json:"content"`
	Options    []Option `json:"options,omitempty"`
}

type Option struct {
	OptionID string `json:"option_id"`
	Text     string `json:"text"`
}

// AnswerPayload is the data of an answer event: the raw submissions as
// received, before any grading.
type AnswerPayload struct {
	Answers []SubmittedAnswer `json:"answers"`
}

type SubmittedAnswer struct {
	QuestionID string `json:"question_id"`
	Type       string `json:"type"`
	Answer     string `json:"answer"`
}

// JudgePayload is the data of a judge event: one result per graded
// question with both the raw and the typed answer shapes.
type JudgePayload struct {
	LatencyMs int           `json:"latency_ms"`
	Results   []JudgeResult `json:"results"`
}

type JudgeResult struct {
	QuestionID    string     `json:"question_id"`
	Type          string     `json:"type"`
	IsCorrect     bool       `json:"is_correct"`
	CorrectAnswer string     `json:"correct_answer"`
	Parsing       string     `json:"parsing"`
	Answer        string     `json:"answer"`
	UserAnswer    UserAnswer `json:"user_answer"`
}

// UserAnswer is the typed shape of a submission, keyed by the stored
// question type: exactly one field is populated. Unrecognized types fall
// back to AnswerText.
type UserAnswer struct {
	SelectedOptionID string `json:"selected_option_id,omitempty"`
	AnswerText       string `json:"answer_text,omitempty"`
	CodeText         string `json:"code_text,omitempty"`
}
