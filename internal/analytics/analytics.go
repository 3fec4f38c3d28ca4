package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"ai-practice/internal/sessionlog"
)

// DailyStats aggregates session log activity for one day.
type DailyStats struct {
	Date                 string `json:"date"`
	Sessions             int    `json:"sessions"`
	UniqueUsers          int    `json:"unique_users"`
	GenerateEvents       int    `json:"generate_events"`
	AnswerEvents         int    `json:"answer_events"`
	JudgeEvents          int    `json:"judge_events"`
	CorrectResults       int    `json:"correct_results"`
	IncorrectResults     int    `json:"incorrect_results"`
	AvgGenerateLatencyMs int    `json:"avg_generate_latency_ms"`
	SkippedSessions      int    `json:"skipped_sessions"`
}

// AnalyzeDaily scans every session log and aggregates the events of the
// target day. Sessions whose log cannot be read are counted in
// SkippedSessions rather than failing the whole report.
func AnalyzeDaily(store *sessionlog.Store, targetDate time.Time) (*DailyStats, error) {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{Date: startOfDay.Format("2006-01-02")}

	ids, err := store.Sessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	uniqueUsers := make(map[string]bool)
	latencyTotal := 0
	for _, id := range ids {
		events, err := store.LoadEvents(id)
		if err != nil {
			stats.SkippedSessions++
			continue
		}
		active := false
		for _, ev := range events {
			ts, err := time.Parse(time.RFC3339Nano, ev.Timestamp)
			if err != nil {
				continue
			}
			if ts.Before(startOfDay) || !ts.Before(endOfDay) {
				continue
			}
			active = true
			switch ev.EventType {
			case sessionlog.EventGenerate:
				stats.GenerateEvents++
				var payload sessionlog.GeneratePayload
				if err := json.Unmarshal(ev.Data, &payload); err == nil {
					latencyTotal += payload.LatencyMs
				}
			case sessionlog.EventAnswer:
				stats.AnswerEvents++
			case sessionlog.EventJudge:
				stats.JudgeEvents++
				var payload sessionlog.JudgePayload
				if err := json.Unmarshal(ev.Data, &payload); err == nil {
					for _, r := range payload.Results {
						if r.IsCorrect {
							stats.CorrectResults++
						} else {
							stats.IncorrectResults++
						}
					}
				}
			}
		}
		if active {
			stats.Sessions++
			uniqueUsers[id.UserID] = true
		}
	}
	stats.UniqueUsers = len(uniqueUsers)
	if stats.GenerateEvents > 0 {
		stats.AvgGenerateLatencyMs = latencyTotal / stats.GenerateEvents
	}
	return stats, nil
}

// Summary renders a human-readable report for the daily log line.
func (ds *DailyStats) Summary() string {
	s := fmt.Sprintf(`Practice service usage for %s:

Activity:
- Active sessions: %d
- Unique users: %d
- Generated batches: %d
- Answer submissions: %d
- Judged batches: %d
`, ds.Date, ds.Sessions, ds.UniqueUsers, ds.GenerateEvents, ds.AnswerEvents, ds.JudgeEvents)

	total := ds.CorrectResults + ds.IncorrectResults
	if total > 0 {
		s += fmt.Sprintf("\nGrading:\n- Correct answers: %d/%d\n", ds.CorrectResults, total)
	}
	if ds.GenerateEvents > 0 {
		s += fmt.Sprintf("\nAverage generation latency: %dms\n", ds.AvgGenerateLatencyMs)
	}
	if ds.SkippedSessions > 0 {
		s += fmt.Sprintf("\nSkipped unreadable sessions: %d\n", ds.SkippedSessions)
	}
	return s
}
