package sessionlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound means no log exists for the identity.
	ErrNotFound = errors.New("session log not found")
	// ErrNoGeneration means the log exists but holds no generate event.
	ErrNoGeneration = errors.New("no generate event recorded")
	// ErrCorrupt means a log line is not a valid record, or the meta
	// record is missing from an existing log.
	ErrCorrupt = errors.New("session log corrupt")
	// ErrMalformedPayload means a generate payload is missing expected
	// fields or has the wrong shape.
	ErrMalformedPayload = errors.New("malformed generate payload")
)

// Store persists one append-only JSONL log per (user, session) under
// {base}/user_{userId}/session_{sessionId}.jsonl. The first line is always
// the meta record, every later line an event record. Lines are never
// rewritten; file order is temporal order. The file shape is read by
// external consumers and must stay stable.
//
// Safe for concurrent use within one process. A single writer per session
// across processes is assumed.
type Store struct {
	baseDir string
	version string
	mu      sync.Mutex
}

func New(baseDir, version string) *Store {
	return &Store{baseDir: baseDir, version: version}
}

func (s *Store) sessionFile(id Identity) string {
	return filepath.Join(s.baseDir, "user_"+id.UserID, "session_"+id.SessionID+".jsonl")
}

// metaLine and eventLine fix the two on-disk line envelopes.
type metaLine struct {
	Meta Meta `json:"meta"`
}

type eventLine struct {
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// record is the union shape used when scanning lines back.
type record struct {
	Meta      *Meta           `json:"meta"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EnsureMeta writes the meta record for a session that has no log yet.
// If the log already exists the call is a no-op: the first-written meta
// is never replaced, even when fields differ.
func (s *Store) EnsureMeta(id Identity, meta Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureMetaLocked(id, meta)
}

func (s *Store) ensureMetaLocked(id Identity, meta Meta) error {
	path := s.sessionFile(id)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure session dir: %w", err)
	}
	if meta.SessionID == "" {
		meta.SessionID = id.SessionID
	}
	if meta.UserID == "" {
		meta.UserID = id.UserID
	}
	if meta.StartTime == "" {
		meta.StartTime = nowISO()
	}
	meta.Version = s.version

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create session log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := json.NewEncoder(f).Encode(metaLine{Meta: meta}); err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	return nil
}

// AppendEvent appends one event record, bootstrapping the meta record
// first when the log does not exist yet (from fallbackMeta if non-nil,
// else from the identity alone). An empty timestamp means the current
// UTC time. The call never fails due to a missing meta.
func (s *Store) AppendEvent(id Identity, eventType string, data any, timestamp string, fallbackMeta *Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sessionFile(id)
	if _, err := os.Stat(path); err != nil {
		var meta Meta
		if fallbackMeta != nil {
			meta = *fallbackMeta
		}
		if err := s.ensureMetaLocked(id, meta); err != nil {
			return err
		}
	}
	if timestamp == "" {
		timestamp = nowISO()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open append: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := json.NewEncoder(f).Encode(eventLine{EventType: eventType, Timestamp: timestamp, Data: raw}); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

// LoadMeta returns the session's meta record.
func (s *Store) LoadMeta(id Identity) (Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta *Meta
	err := s.scan(id, func(rec record) {
		if meta == nil && rec.Meta != nil {
			m := *rec.Meta
			meta = &m
		}
	})
	if err != nil {
		return Meta{}, err
	}
	if meta == nil {
		return Meta{}, fmt.Errorf("%w: missing meta record for user %s session %s", ErrCorrupt, id.UserID, id.SessionID)
	}
	return *meta, nil
}

// LoadLatestGeneratePayload returns the data of the LAST generate event
// in the log. Earlier generation batches are superseded entirely: a
// later batch may reuse question ids, so only the latest one may ever
// feed grading.
func (s *Store) LoadLatestGeneratePayload(id Identity) (GeneratePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.latestGenerateData(id)
	if err != nil {
		return GeneratePayload{}, err
	}
	var payload GeneratePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return GeneratePayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, nil
}

// LoadLatestGeneratedQuestions returns the question set of the latest
// generation batch.
func (s *Store) LoadLatestGeneratedQuestions(id Identity) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.latestGenerateData(id)
	if err != nil {
		return nil, err
	}
	var probe struct {
		Questions *[]Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if probe.Questions == nil {
		return nil, fmt.Errorf("%w: questions missing", ErrMalformedPayload)
	}
	return *probe.Questions, nil
}

// LoadEvents returns every event record in append order. Used by the
// audit/analytics read path; the meta record is not included.
func (s *Store) LoadEvents(id Identity) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []EventRecord
	err := s.scan(id, func(rec record) {
		if rec.Meta == nil {
			events = append(events, EventRecord{EventType: rec.EventType, Timestamp: rec.Timestamp, Data: rec.Data})
		}
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Sessions lists every identity that has a log file, sorted by user then
// session.
func (s *Store) Sessions() ([]Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userDirs, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read base dir: %w", err)
	}
	var ids []Identity
	for _, ud := range userDirs {
		if !ud.IsDir() || !strings.HasPrefix(ud.Name(), "user_") {
			continue
		}
		userID := strings.TrimPrefix(ud.Name(), "user_")
		files, err := os.ReadDir(filepath.Join(s.baseDir, ud.Name()))
		if err != nil {
			return nil, fmt.Errorf("read user dir: %w", err)
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			sessionID := strings.TrimSuffix(strings.TrimPrefix(name, "session_"), ".jsonl")
			ids = append(ids, Identity{UserID: userID, SessionID: sessionID})
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].UserID != ids[j].UserID {
			return ids[i].UserID < ids[j].UserID
		}
		return ids[i].SessionID < ids[j].SessionID
	})
	return ids, nil
}

func (s *Store) latestGenerateData(id Identity) (json.RawMessage, error) {
	var latest json.RawMessage
	err := s.scan(id, func(rec record) {
		if rec.Meta == nil && rec.EventType == EventGenerate && len(rec.Data) > 0 {
			latest = rec.Data
		}
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: user %s session %s", ErrNoGeneration, id.UserID, id.SessionID)
	}
	return latest, nil
}

// scan reads the log line by line in file order. Callers hold the mutex.
func (s *Store) scan(id Identity, visit func(record)) error {
	path := s.sessionFile(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("open read: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	sc.Buffer(buf, 10*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		visit(rec)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
