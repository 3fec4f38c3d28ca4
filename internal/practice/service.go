package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"ai-practice/internal/llm"
	"ai-practice/internal/sessionlog"
)

// Service sequences the LLM collaborator with session log writes. One
// attempt per call, no retries: a failed or cancelled call surfaces
// immediately and nothing is appended for it.
type Service struct {
	llm            llm.Client
	store          *sessionlog.Store
	generatePrompt string
	verifyPrompt   string
}

// New loads both prompt templates up front; a missing template file is a
// construction error and stops startup.
func New(client llm.Client, store *sessionlog.Store, generatePromptPath, verifyPromptPath string) (*Service, error) {
	generatePrompt, err := loadPrompt(generatePromptPath)
	if err != nil {
		return nil, err
	}
	verifyPrompt, err := loadPrompt(verifyPromptPath)
	if err != nil {
		return nil, err
	}
	return &Service{
		llm:            client,
		store:          store,
		generatePrompt: generatePrompt,
		verifyPrompt:   verifyPrompt,
	}, nil
}

func loadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt template %s: %w", path, err)
	}
	return string(data), nil
}

func (s *Service) identity(userID, sessionID string) sessionlog.Identity {
	return sessionlog.Identity{UserID: userID, SessionID: sessionID}
}

// Generate produces a fresh question batch for a section and records it
// as a generate event. The persisted batch is what verification later
// resolves answers against.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	id := s.identity(req.UserID, req.SessionID)
	err := s.store.EnsureMeta(id, sessionlog.Meta{
		BookName:         req.BookName,
		BookIntroduction: req.BookIntroduction,
		SectionID:        req.SectionID,
		SectionContent:   req.SectionContent,
	})
	if err != nil {
		return GenerateResult{}, err
	}

	userMessage := fmt.Sprintf(`Book title: %s
Book introduction: %s

Section content:
%s

Generate exactly three practice questions from the content above.`,
		req.BookName, req.BookIntroduction, req.SectionContent)

	start := time.Now()
	resp, err := s.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: s.generatePrompt},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("generate completion: %w", err)
	}
	latencyMs := int(time.Since(start).Milliseconds())

	result, err := decodeGenerated(resp.Content)
	if err != nil {
		return GenerateResult{}, err
	}

	payload := sessionlog.GeneratePayload{
		LatencyMs: latencyMs,
		Summary:   result.Summary,
		Questions: make([]sessionlog.Question, 0, len(result.Questions)),
	}
	for _, q := range result.Questions {
		sq := sessionlog.Question{QuestionID: q.QuestionID, Type: q.Type, Content: q.Content}
		for _, opt := range q.Options {
			sq.Options = append(sq.Options, sessionlog.Option{OptionID: opt.OptionID, Text: opt.Text})
		}
		payload.Questions = append(payload.Questions, sq)
	}
	if err := s.store.AppendEvent(id, sessionlog.EventGenerate, payload, "", nil); err != nil {
		return GenerateResult{}, err
	}
	return result, nil
}

// Verify grades a submitted answer batch against the most recently
// generated questions for the session.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	id := s.identity(req.UserID, req.SessionID)
	fallback := sessionlog.Meta{SectionID: req.SectionID}
	if err := s.store.EnsureMeta(id, fallback); err != nil {
		return VerifyResult{}, err
	}

	payload, err := s.store.LoadLatestGeneratePayload(id)
	if err != nil {
		if isMissingGeneration(err) {
			return VerifyResult{}, fmt.Errorf("%w: %v", ErrPriorGenerationRequired, err)
		}
		return VerifyResult{}, err
	}

	rec, err := reconcileAnswers(payload.Questions, req.Questions)
	if err != nil {
		return VerifyResult{}, err
	}

	answers := sessionlog.AnswerPayload{Answers: make([]sessionlog.SubmittedAnswer, 0, len(req.Questions))}
	for _, sub := range req.Questions {
		answers.Answers = append(answers.Answers, sessionlog.SubmittedAnswer{
			QuestionID: sub.QuestionID,
			Type:       sub.Type,
			Answer:     sub.Answer,
		})
	}
	if err := s.store.AppendEvent(id, sessionlog.EventAnswer, answers, "", nil); err != nil {
		return VerifyResult{}, err
	}

	userMessage := fmt.Sprintf(`Verify the answers to the following questions:

%s
Judge every question, decide whether the answer is correct, and explain the verdict in detail.`, rec.promptBody)

	start := time.Now()
	resp, err := s.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: s.verifyPrompt},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify completion: %w", err)
	}
	latencyMs := int(time.Since(start).Milliseconds())

	verdicts, err := decodeVerified(resp.Content)
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Questions: make([]VerifiedQuestion, 0, len(verdicts))}
	judge := sessionlog.JudgePayload{LatencyMs: latencyMs}
	for _, v := range verdicts {
		// The stored type is authoritative; verdicts for ids the client
		// never submitted get an empty user answer and pass through.
		qType := v.Type
		if storedType, ok := rec.types[v.QuestionID]; ok {
			qType = storedType
		}
		userAnswer := rec.userAnswers[v.QuestionID]

		result.Questions = append(result.Questions, VerifiedQuestion{
			QuestionID:    v.QuestionID,
			Type:          qType,
			IsCorrect:     v.IsCorrect,
			UserAnswer:    apiUserAnswer(userAnswer),
			CorrectAnswer: v.CorrectAnswer,
			Parsing:       v.Parsing,
		})
		judge.Results = append(judge.Results, sessionlog.JudgeResult{
			QuestionID:    v.QuestionID,
			Type:          qType,
			IsCorrect:     v.IsCorrect,
			CorrectAnswer: v.CorrectAnswer,
			Parsing:       v.Parsing,
			Answer:        rec.raw[v.QuestionID],
			UserAnswer:    userAnswer,
		})
	}
	if err := s.store.AppendEvent(id, sessionlog.EventJudge, judge, "", nil); err != nil {
		return VerifyResult{}, err
	}
	return result, nil
}

func isMissingGeneration(err error) bool {
	return errors.Is(err, sessionlog.ErrNotFound) || errors.Is(err, sessionlog.ErrNoGeneration)
}

// decodeGenerated parses and strictly validates the generation response:
// a summary plus exactly three questions, each fully specified, single
// choice questions carrying at least two options.
func decodeGenerated(content string) (GenerateResult, error) {
	var raw struct {
		Summary   *string `json:"summary"`
		Questions []struct {
			QuestionID *string  `json:"questionId"`
			Type       *string  `json:"type"`
			Content    *string  `json:"content"`
			Options    []Option `json:"options"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return GenerateResult{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if raw.Summary == nil {
		return GenerateResult{}, fmt.Errorf("%w: summary missing", ErrSchemaViolation)
	}
	if len(raw.Questions) != 3 {
		return GenerateResult{}, fmt.Errorf("%w: want 3 questions, got %d", ErrSchemaViolation, len(raw.Questions))
	}

	result := GenerateResult{Summary: *raw.Summary}
	for i, q := range raw.Questions {
		if q.QuestionID == nil || q.Type == nil || q.Content == nil {
			return GenerateResult{}, fmt.Errorf("%w: question %d incomplete", ErrSchemaViolation, i)
		}
		switch *q.Type {
		case TypeSingleChoice, TypeShortAnswer, TypeCode:
		default:
			return GenerateResult{}, fmt.Errorf("%w: question %d has unknown type %q", ErrSchemaViolation, i, *q.Type)
		}
		if *q.Type == TypeSingleChoice && len(q.Options) < 2 {
			return GenerateResult{}, fmt.Errorf("%w: question %d needs at least two options", ErrSchemaViolation, i)
		}
		result.Questions = append(result.Questions, GeneratedQuestion{
			QuestionID: *q.QuestionID,
			Type:       *q.Type,
			Content:    *q.Content,
			Options:    q.Options,
		})
	}
	return result, nil
}

type verdict struct {
	QuestionID    string
	Type          string
	IsCorrect     bool
	CorrectAnswer string
	Parsing       string
}

// decodeVerified parses and strictly validates the verification
// response shape.
func decodeVerified(content string) ([]verdict, error) {
	var raw struct {
		Questions []struct {
			QuestionID    *string `json:"questionId"`
			Type          *string `json:"type"`
			IsCorrect     *bool   `json:"isCorrect"`
			CorrectAnswer *string `json:"correctAnswer"`
			Parsing       *string `json:"parsing"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if raw.Questions == nil {
		return nil, fmt.Errorf("%w: questions missing", ErrSchemaViolation)
	}

	verdicts := make([]verdict, 0, len(raw.Questions))
	for i, q := range raw.Questions {
		if q.QuestionID == nil || q.IsCorrect == nil || q.Parsing == nil {
			return nil, fmt.Errorf("%w: verdict %d incomplete", ErrSchemaViolation, i)
		}
		v := verdict{QuestionID: *q.QuestionID, IsCorrect: *q.IsCorrect, Parsing: *q.Parsing}
		if q.Type != nil {
			v.Type = *q.Type
		}
		if q.CorrectAnswer != nil {
			v.CorrectAnswer = *q.CorrectAnswer
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, nil
}
