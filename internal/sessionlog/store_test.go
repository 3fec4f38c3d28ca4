package sessionlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("parse line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoadOnMissingLogReturnsNotFound(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "nobody", SessionID: "never"}

	if _, err := s.LoadMeta(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadMeta: want ErrNotFound, got %v", err)
	}
	if _, err := s.LoadLatestGeneratePayload(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadLatestGeneratePayload: want ErrNotFound, got %v", err)
	}
	if _, err := s.LoadEvents(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadEvents: want ErrNotFound, got %v", err)
	}
}

func TestEnsureMetaWritesSingleStampedLine(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "v1.0.0")
	id := Identity{UserID: "u123", SessionID: "s456"}

	err := s.EnsureMeta(id, Meta{
		BookName:         "Go Basics",
		BookIntroduction: "Prepared for new learners.",
		SectionID:        "section-1",
		SectionContent:   "Sample content",
		StartTime:        "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("ensure meta: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "user_u123", "session_s456.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("want 1 line, got %d", len(lines))
	}
	meta := lines[0]["meta"].(map[string]any)
	if meta["session_id"] != "s456" || meta["user_id"] != "u123" {
		t.Errorf("identity not filled in: %v", meta)
	}
	if meta["version"] != "v1.0.0" {
		t.Errorf("want stamped version v1.0.0, got %v", meta["version"])
	}
	if meta["book_name"] != "Go Basics" {
		t.Errorf("unexpected book_name: %v", meta["book_name"])
	}
}

func TestEnsureMetaIsIdempotent(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	if err := s.EnsureMeta(id, Meta{BookName: "A"}); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := s.EnsureMeta(id, Meta{BookName: "B"}); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	meta, err := s.LoadMeta(id)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.BookName != "A" {
		t.Errorf("first-written meta must win, got book_name %q", meta.BookName)
	}
}

func TestAppendEventBootstrapsMeta(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "v2.0.0")
	id := Identity{UserID: "user-x", SessionID: "session-y"}

	err := s.AppendEvent(id, EventJudge, JudgePayload{LatencyMs: 42}, "2024-02-02T00:00:00Z", nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "user_user-x", "session_session-y.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("want meta line + event line, got %d lines", len(lines))
	}
	meta := lines[0]["meta"].(map[string]any)
	if meta["session_id"] != "session-y" || meta["user_id"] != "user-x" {
		t.Errorf("bootstrapped meta wrong identity: %v", meta)
	}
	if meta["version"] != "v2.0.0" {
		t.Errorf("want version v2.0.0, got %v", meta["version"])
	}
	if _, err := time.Parse(time.RFC3339Nano, meta["start_time"].(string)); err != nil {
		t.Errorf("start_time is not a timestamp: %v", err)
	}
	if lines[1]["event_type"] != "judge" || lines[1]["timestamp"] != "2024-02-02T00:00:00Z" {
		t.Errorf("unexpected event line: %v", lines[1])
	}
}

func TestAppendEventUsesFallbackMeta(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u9", SessionID: "s9"}

	fallback := &Meta{SectionID: "sec-9", BookName: "Fallback Book"}
	if err := s.AppendEvent(id, EventAnswer, AnswerPayload{}, "", fallback); err != nil {
		t.Fatalf("append: %v", err)
	}

	meta, err := s.LoadMeta(id)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.BookName != "Fallback Book" || meta.SectionID != "sec-9" {
		t.Errorf("fallback meta not applied: %+v", meta)
	}
	if meta.StartTime == "" {
		t.Error("start_time should default to now")
	}
}

func TestLatestGenerateWinsAcrossInterleavedEvents(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	g1 := GeneratePayload{LatencyMs: 10, Summary: "first", Questions: []Question{{QuestionID: "1", Type: "short_answer", Content: "old"}}}
	g2 := GeneratePayload{LatencyMs: 20, Summary: "second", Questions: []Question{{QuestionID: "1", Type: "short_answer", Content: "new"}}}

	if err := s.AppendEvent(id, EventGenerate, g1, "", nil); err != nil {
		t.Fatalf("append g1: %v", err)
	}
	if err := s.AppendEvent(id, EventAnswer, AnswerPayload{Answers: []SubmittedAnswer{{QuestionID: "1", Answer: "x"}}}, "", nil); err != nil {
		t.Fatalf("append answer: %v", err)
	}
	if err := s.AppendEvent(id, EventGenerate, g2, "", nil); err != nil {
		t.Fatalf("append g2: %v", err)
	}

	questions, err := s.LoadLatestGeneratedQuestions(id)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(questions) != 1 || questions[0].Content != "new" {
		t.Errorf("latest batch must win, got %+v", questions)
	}

	payload, err := s.LoadLatestGeneratePayload(id)
	if err != nil {
		t.Fatalf("load payload: %v", err)
	}
	if payload.Summary != "second" || payload.LatencyMs != 20 {
		t.Errorf("want g2 payload, got %+v", payload)
	}
}

func TestGeneratePayloadRoundTrip(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "rt"}

	in := GeneratePayload{
		LatencyMs: 321,
		Summary:   "chapter recap",
		Questions: []Question{
			{
				QuestionID: "q1",
				Type:       "single_choice",
				Content:    "Which keyword declares a constant?",
				Options: []Option{
					{OptionID: "A", Text: "var"},
					{OptionID: "B", Text: "const"},
				},
			},
			{QuestionID: "q2", Type: "code", Content: "Write a loop."},
		},
	}
	if err := s.AppendEvent(id, EventGenerate, in, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := s.LoadLatestGeneratePayload(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	inJSON, _ := json.Marshal(in)
	outJSON, _ := json.Marshal(out)
	if string(inJSON) != string(outJSON) {
		t.Errorf("round trip mismatch:\n in: %s\nout: %s", inJSON, outJSON)
	}
}

func TestNoGenerationWhenLogHasNoGenerateEvent(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	if err := s.EnsureMeta(id, Meta{}); err != nil {
		t.Fatalf("ensure meta: %v", err)
	}
	if err := s.AppendEvent(id, EventAnswer, AnswerPayload{}, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := s.LoadLatestGeneratePayload(id); !errors.Is(err, ErrNoGeneration) {
		t.Errorf("want ErrNoGeneration, got %v", err)
	}
}

func TestCorruptLineFailsScans(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	if err := s.EnsureMeta(id, Meta{}); err != nil {
		t.Fatalf("ensure meta: %v", err)
	}
	path := filepath.Join(dir, "user_u1", "session_s1.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	if _, err := s.LoadMeta(id); !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadMeta: want ErrCorrupt, got %v", err)
	}
	if _, err := s.LoadLatestGeneratePayload(id); !errors.Is(err, ErrCorrupt) {
		t.Errorf("LoadLatestGeneratePayload: want ErrCorrupt, got %v", err)
	}
}

func TestMissingMetaRecordIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	path := filepath.Join(dir, "user_u1", "session_s1.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	line := `{"event_type":"generate","timestamp":"2024-01-01T00:00:00Z","data":{}}` + "\n"
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := s.LoadMeta(id); !errors.Is(err, ErrCorrupt) {
		t.Errorf("want ErrCorrupt, got %v", err)
	}
}

func TestMalformedGeneratePayload(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	if err := s.AppendEvent(id, EventGenerate, map[string]any{"latency_ms": 5}, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.LoadLatestGeneratedQuestions(id); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("missing questions: want ErrMalformedPayload, got %v", err)
	}

	if err := s.AppendEvent(id, EventGenerate, map[string]any{"questions": "nope"}, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.LoadLatestGeneratedQuestions(id); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("non-sequence questions: want ErrMalformedPayload, got %v", err)
	}
}

func TestLoadEventsKeepsAppendOrder(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	id := Identity{UserID: "u1", SessionID: "s1"}

	types := []string{EventGenerate, EventAnswer, EventJudge}
	for i, et := range types {
		ts := time.Date(2024, 3, 1, 0, i, 0, 0, time.UTC).Format(time.RFC3339)
		if err := s.AppendEvent(id, et, map[string]any{"n": i}, ts, nil); err != nil {
			t.Fatalf("append %s: %v", et, err)
		}
	}

	events, err := s.LoadEvents(id)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("want 3 events, got %d", len(events))
	}
	for i, et := range types {
		if events[i].EventType != et {
			t.Errorf("event %d: want %s, got %s", i, et, events[i].EventType)
		}
	}
}

func TestSessionsListsWrittenIdentities(t *testing.T) {
	s := New(t.TempDir(), "v1.0.0")
	want := []Identity{
		{UserID: "a", SessionID: "1"},
		{UserID: "a", SessionID: "2"},
		{UserID: "b", SessionID: "1"},
	}
	for _, id := range want {
		if err := s.EnsureMeta(id, Meta{}); err != nil {
			t.Fatalf("ensure %v: %v", id, err)
		}
	}

	got, err := s.Sessions()
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("want %d sessions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("session %d: want %v, got %v", i, want[i], got[i])
		}
	}
}
