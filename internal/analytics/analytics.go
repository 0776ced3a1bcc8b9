// Package analytics derives learning reports from a session's execution
// history.
package analytics

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
)

// Common Python error types recognized in cell error output, checked in
// order. Anything else buckets under 其他錯誤.
var errorPatterns = []string{
	"SyntaxError",
	"NameError",
	"TypeError",
	"ValueError",
	"IndexError",
	"KeyError",
	"AttributeError",
	"ImportError",
	"ModuleNotFoundError",
	"ZeroDivisionError",
	"FileNotFoundError",
	"IndentationError",
	"RuntimeError",
	"MemoryError",
	"RecursionError",
}

const otherErrorBucket = "其他錯誤"

// maxErrorBuckets caps the error distribution at the most frequent types.
const maxErrorBuckets = 10

// ExecutionSummary aggregates success and failure counts.
type ExecutionSummary struct {
	TotalExecutions      int     `json:"total_executions"`
	SuccessfulExecutions int     `json:"successful_executions"`
	FailedExecutions     int     `json:"failed_executions"`
	SuccessRate          float64 `json:"success_rate"`
}

// ErrorBucket is one error type with its occurrence count.
type ErrorBucket struct {
	ErrorType string `json:"error_type"`
	Count     int    `json:"count"`
}

// CellTime is per-cell execution time aggregation.
type CellTime struct {
	CellID         string  `json:"cell_id"`
	AvgTimeMS      float64 `json:"avg_time_ms"`
	ExecutionCount int     `json:"execution_count"`
}

// TimeAnalysis aggregates execution durations.
type TimeAnalysis struct {
	TotalTimeMS int64      `json:"total_time_ms"`
	AvgTimeMS   float64    `json:"avg_time_ms"`
	MaxTimeMS   int64      `json:"max_time_ms"`
	CellTimes   []CellTime `json:"cell_times"`
}

// HeatmapBlock counts executions in one 15-minute block of an hour.
type HeatmapBlock struct {
	Hour        int `json:"hour"`
	MinuteBlock int `json:"minute_block"`
	Count       int `json:"count"`
}

// CellStats is per-cell execution and error history.
type CellStats struct {
	CellID         string `json:"cell_id"`
	ExecutionCount int    `json:"execution_count"`
	ErrorCount     int    `json:"error_count"`
	FirstExecution string `json:"first_execution"`
	LastExecution  string `json:"last_execution"`
}

// Report is the full learning analytics report for one session.
type Report struct {
	ExecutionSummary  ExecutionSummary `json:"execution_summary"`
	ErrorDistribution []ErrorBucket    `json:"error_distribution"`
	TimeAnalysis      TimeAnalysis     `json:"time_analysis"`
	ActivityHeatmap   []HeatmapBlock   `json:"activity_heatmap"`
	CellAnalysis      []CellStats      `json:"cell_analysis"`
}

// EmptyReport returns the zero-valued report shape used when a session has no
// executions or persistence is unavailable.
func EmptyReport() Report {
	return Report{
		ErrorDistribution: []ErrorBucket{},
		TimeAnalysis:      TimeAnalysis{CellTimes: []CellTime{}},
		ActivityHeatmap:   []HeatmapBlock{},
		CellAnalysis:      []CellStats{},
	}
}

// Service generates reports from the configured store.
type Service struct {
	stores *store.Manager
	logger *log.Logger
}

// NewService builds a Service over the store manager.
func NewService(stores *store.Manager, logger *log.Logger) *Service {
	return &Service{stores: stores, logger: logger}
}

// GenerateReport loads the session's execution logs and computes every report
// dimension. Any failure degrades to the empty report; analytics never
// surface storage errors to students.
func (s *Service) GenerateReport(ctx context.Context, sessionID string) Report {
	backing := s.stores.Current()
	if backing == nil {
		return EmptyReport()
	}

	logs, err := backing.ExecutionLogs(ctx, sessionID, 1000)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("[analytics] loading execution logs for session %s: %v", sessionID, err)
		}
		return EmptyReport()
	}
	return Compute(logs)
}

// Compute builds the report from execution logs already in hand. Logs are
// expected in chronological order.
func Compute(logs []store.ExecutionLog) Report {
	if len(logs) == 0 {
		return EmptyReport()
	}
	return Report{
		ExecutionSummary:  executionSummary(logs),
		ErrorDistribution: errorDistribution(logs),
		TimeAnalysis:      timeAnalysis(logs),
		ActivityHeatmap:   activityHeatmap(logs),
		CellAnalysis:      cellAnalysis(logs),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func executionSummary(logs []store.ExecutionLog) ExecutionSummary {
	total := len(logs)
	failed := 0
	for _, entry := range logs {
		if entry.ErrorOutput != "" {
			failed++
		}
	}
	successful := total - failed
	rate := 0.0
	if total > 0 {
		rate = round1(float64(successful) / float64(total) * 100)
	}
	return ExecutionSummary{
		TotalExecutions:      total,
		SuccessfulExecutions: successful,
		FailedExecutions:     failed,
		SuccessRate:          rate,
	}
}

// ClassifyError maps raw error output to a known Python error type.
func ClassifyError(errorOutput string) string {
	for _, pattern := range errorPatterns {
		if strings.Contains(errorOutput, pattern) {
			return pattern
		}
	}
	return otherErrorBucket
}

func errorDistribution(logs []store.ExecutionLog) []ErrorBucket {
	counts := map[string]int{}
	order := map[string]int{}
	for _, entry := range logs {
		if entry.ErrorOutput == "" {
			continue
		}
		errType := ClassifyError(entry.ErrorOutput)
		if _, seen := counts[errType]; !seen {
			order[errType] = len(order)
		}
		counts[errType]++
	}

	buckets := make([]ErrorBucket, 0, len(counts))
	for errType, count := range counts {
		buckets = append(buckets, ErrorBucket{ErrorType: errType, Count: count})
	}
	// Highest count first, first-seen order on ties.
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return order[buckets[i].ErrorType] < order[buckets[j].ErrorType]
	})
	if len(buckets) > maxErrorBuckets {
		buckets = buckets[:maxErrorBuckets]
	}
	return buckets
}

func timeAnalysis(logs []store.ExecutionLog) TimeAnalysis {
	var total, max int64
	type cellAgg struct {
		sum   int64
		count int
	}
	aggs := map[string]*cellAgg{}
	cellOrder := []string{}

	for _, entry := range logs {
		total += entry.ExecutionTimeMS
		if entry.ExecutionTimeMS > max {
			max = entry.ExecutionTimeMS
		}
		cellID := entry.CellID
		if cellID == "" {
			cellID = "unknown"
		}
		agg, ok := aggs[cellID]
		if !ok {
			agg = &cellAgg{}
			aggs[cellID] = agg
			cellOrder = append(cellOrder, cellID)
		}
		agg.sum += entry.ExecutionTimeMS
		agg.count++
	}

	cellTimes := make([]CellTime, 0, len(cellOrder))
	for _, cellID := range cellOrder {
		agg := aggs[cellID]
		cellTimes = append(cellTimes, CellTime{
			CellID:         cellID,
			AvgTimeMS:      round1(float64(agg.sum) / float64(agg.count)),
			ExecutionCount: agg.count,
		})
	}

	return TimeAnalysis{
		TotalTimeMS: total,
		AvgTimeMS:   round1(float64(total) / float64(len(logs))),
		MaxTimeMS:   max,
		CellTimes:   cellTimes,
	}
}

func activityHeatmap(logs []store.ExecutionLog) []HeatmapBlock {
	counts := map[[2]int]int{}
	for _, entry := range logs {
		if entry.ExecutedAt.IsZero() {
			continue
		}
		hour := entry.ExecutedAt.Hour()
		block := (entry.ExecutedAt.Minute() / 15) * 15
		counts[[2]int{hour, block}]++
	}

	blocks := make([]HeatmapBlock, 0, len(counts))
	for key, count := range counts {
		blocks = append(blocks, HeatmapBlock{Hour: key[0], MinuteBlock: key[1], Count: count})
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Hour != blocks[j].Hour {
			return blocks[i].Hour < blocks[j].Hour
		}
		return blocks[i].MinuteBlock < blocks[j].MinuteBlock
	})
	return blocks
}

func cellAnalysis(logs []store.ExecutionLog) []CellStats {
	stats := map[string]*CellStats{}
	cellOrder := []string{}

	for _, entry := range logs {
		cellID := entry.CellID
		if cellID == "" {
			cellID = "unknown"
		}
		executedAt := ""
		if !entry.ExecutedAt.IsZero() {
			executedAt = entry.ExecutedAt.Format("2006-01-02T15:04:05")
		}
		cs, ok := stats[cellID]
		if !ok {
			cs = &CellStats{CellID: cellID, FirstExecution: executedAt}
			stats[cellID] = cs
			cellOrder = append(cellOrder, cellID)
		}
		cs.ExecutionCount++
		if entry.ErrorOutput != "" {
			cs.ErrorCount++
		}
		cs.LastExecution = executedAt
	}

	out := make([]CellStats, 0, len(cellOrder))
	for _, cellID := range cellOrder {
		out = append(out, *stats[cellID])
	}
	return out
}
