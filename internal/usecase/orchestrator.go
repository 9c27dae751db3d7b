package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"datalens-core/internal/domain/entity"
	"datalens-core/internal/domain/repository"
)

// StatsSource exposes transport call counters to observability consumers.
type StatsSource interface {
	Stats() entity.CallStats
	ResetStats()
}

// cacheThreshold is the cosine similarity above which a previously answered
// question is reused instead of running the assistant again.
const cacheThreshold = 0.90

// Orchestrator sequences upload, session acquisition, message submission,
// run polling and chart extraction into the two user-facing operations.
// Fatal lower-layer errors (timeout, rate-limit exhaustion, remote API
// errors) propagate unchanged; no retry policy is added here.
type Orchestrator struct {
	api         repository.AssistantAPI
	session     *SessionCache
	poller      *RunPoller
	parser      *ChartParser
	embedder    repository.Embedder
	answerCache repository.AnswerCache
	stats       StatsSource
	log         *slog.Logger

	mu           sync.Mutex
	lastRowCount int
}

func NewOrchestrator(
	api repository.AssistantAPI,
	session *SessionCache,
	poller *RunPoller,
	parser *ChartParser,
	embedder repository.Embedder,
	answerCache repository.AnswerCache,
	stats StatsSource,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		api:         api,
		session:     session,
		poller:      poller,
		parser:      parser,
		embedder:    embedder,
		answerCache: answerCache,
		stats:       stats,
		log:         log,
	}
}

const analysisPrompt = "Analyze the attached dataset. Summarize the key findings, then emit " +
	"every useful visualization as a delimited chart block. For each chart include a finding, " +
	"its business impact, and a quantified recommendation in the description."

// AnalyzeDocument uploads a data file and drives a full assistant run over
// it, returning the parsed summary, insights and charts.
func (u *Orchestrator) AnalyzeDocument(ctx context.Context, fileName string, data []byte) (*entity.AnalysisResult, error) {
	start := time.Now()
	rowCount := countDataRows(data)
	u.setRowCount(rowCount)

	fileID, err := u.api.UploadFile(ctx, fileName, data)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	assistantID, threadID, err := u.acquireSession(ctx)
	if err != nil {
		return nil, err
	}

	if err := u.api.CreateMessage(ctx, threadID, analysisPrompt, []string{fileID}); err != nil {
		return nil, err
	}

	text, err := u.runToCompletion(ctx, threadID, assistantID)
	if err != nil {
		return nil, err
	}

	report := u.parser.Parse(text, ParseOptions{DatasetRows: rowCount})
	return &entity.AnalysisResult{
		Summary:  report.CleanText,
		Insights: insightsFrom(report.Charts),
		Charts:   report.Charts,
		Metadata: entity.AnalysisMetadata{
			FileName:    fileName,
			RowCount:    rowCount,
			AssistantID: assistantID,
			ThreadID:    threadID,
			ElapsedMs:   time.Since(start).Milliseconds(),
		},
	}, nil
}

// SendMessage answers a follow-up question on the current session. The
// semantic cache is consulted first; on a miss the assistant run executes
// and the answer is cached in the background.
func (u *Orchestrator) SendMessage(ctx context.Context, message string) (*entity.ChatReply, error) {
	var vector []float32
	if u.embedder != nil && u.answerCache != nil {
		v, err := u.embedder.CreateEmbedding(ctx, message)
		if err != nil {
			u.log.Warn("embedding failed, skipping semantic cache", "error", err)
		} else {
			vector = v
			if hit, err := u.answerCache.Search(ctx, vector, cacheThreshold); err == nil && hit != nil {
				report := u.parser.Parse(hit.Answer, ParseOptions{DatasetRows: u.rowCount()})
				return &entity.ChatReply{
					Content: report.CleanText,
					Charts:  report.Charts,
					Cached:  true,
					Score:   hit.Score,
				}, nil
			}
		}
	}

	assistantID, threadID, err := u.acquireSession(ctx)
	if err != nil {
		return nil, err
	}

	if err := u.api.CreateMessage(ctx, threadID, message, nil); err != nil {
		return nil, err
	}

	text, err := u.runToCompletion(ctx, threadID, assistantID)
	if err != nil {
		return nil, err
	}

	if vector != nil {
		// The request context may expire before the save lands.
		go func(question, answer string, v []float32) {
			bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := u.answerCache.Save(bgCtx, question, answer, v); err != nil {
				u.log.Warn("answer cache save failed", "error", err)
			}
		}(message, text, vector)
	}

	report := u.parser.Parse(text, ParseOptions{DatasetRows: u.rowCount()})
	return &entity.ChatReply{
		Content: report.CleanText,
		Charts:  report.Charts,
	}, nil
}

// Stats reports cumulative remote call usage.
func (u *Orchestrator) Stats() entity.CallStats {
	return u.stats.Stats()
}

// Reset drops the cached session and zeroes the call counters.
func (u *Orchestrator) Reset() {
	u.session.Reset()
	u.stats.ResetStats()
}

// Analyze and chat requests are served concurrently, so the row count of the
// most recently analyzed dataset is mutex-guarded like the other shared state.
func (u *Orchestrator) setRowCount(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastRowCount = n
}

func (u *Orchestrator) rowCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastRowCount
}

func (u *Orchestrator) acquireSession(ctx context.Context) (assistantID, threadID string, err error) {
	assistantID, err = u.session.GetOrCreateAssistant(ctx)
	if err != nil {
		return "", "", err
	}
	threadID, err = u.session.GetOrCreateThread(ctx)
	if err != nil {
		return "", "", err
	}
	return assistantID, threadID, nil
}

func (u *Orchestrator) runToCompletion(ctx context.Context, threadID, assistantID string) (string, error) {
	run, err := u.api.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return "", err
	}
	if _, err := u.poller.Wait(ctx, run); err != nil {
		return "", err
	}
	return u.api.LatestAssistantMessage(ctx, threadID)
}

// insightsFrom surfaces each chart's finding as a standalone insight line.
func insightsFrom(charts []entity.ChartRecord) []string {
	insights := make([]string, 0, len(charts))
	for _, c := range charts {
		if c.Description != "" && !c.Recovered {
			insights = append(insights, c.Description)
		}
	}
	return insights
}

// countDataRows counts data rows in a delimited text file, excluding the
// header line. Binary or empty payloads yield 0 (row count unknown).
func countDataRows(data []byte) int {
	if len(data) == 0 || bytes.IndexByte(data, 0) >= 0 {
		return 0
	}
	lines := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines++
		}
	}
	if lines <= 1 {
		return 0
	}
	return lines - 1
}
