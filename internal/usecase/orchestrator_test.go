package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalens-core/internal/domain/entity"
)

type fakeStats struct {
	stats  entity.CallStats
	resets int
}

func (f *fakeStats) Stats() entity.CallStats { return f.stats }
func (f *fakeStats) ResetStats()             { f.resets++ }

type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeAnswerCache struct {
	mu    sync.Mutex
	hit   *entity.CachedAnswer
	saved []string
}

func (f *fakeAnswerCache) Search(ctx context.Context, vector []float32, threshold float32) (*entity.CachedAnswer, error) {
	return f.hit, nil
}

func (f *fakeAnswerCache) Save(ctx context.Context, question, answer string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, question)
	return nil
}

func (f *fakeAnswerCache) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

const sampleReply = "The data shows steady growth.\n" +
	"CHART_START {\"id\":\"c1\",\"type\":\"bar\",\"title\":\"Revenue\"," +
	"\"description\":\"Revenue grew 15%; double down on EMEA.\"," +
	"\"data\":[{\"region\":\"EMEA\",\"v\":3},{\"region\":\"APAC\",\"v\":2},{\"region\":\"AMER\",\"v\":4}]} CHART_END"

func testOrchestrator(api *fakeAssistantAPI, emb *fakeEmbedder, cache *fakeAnswerCache) (*Orchestrator, *fakeStats) {
	log := slog.New(slog.DiscardHandler)
	stats := &fakeStats{}
	session := NewSessionCache(api, 30*time.Minute, log)
	poller := testPoller(api, 30)
	parser := NewChartParser(log)

	orch := NewOrchestrator(api, session, poller, parser, nil, nil, stats, log)
	if emb != nil {
		orch.embedder = emb
	}
	if cache != nil {
		orch.answerCache = cache
	}
	return orch, stats
}

func TestAnalyzeDocumentEndToEnd(t *testing.T) {
	api := &fakeAssistantAPI{
		runStatuses: []entity.RunStatus{entity.RunCompleted},
		reply:       sampleReply,
	}
	orch, _ := testOrchestrator(api, nil, nil)

	csv := []byte("region,v\nEMEA,3\nAPAC,2\nAMER,4\n")
	result, err := orch.AnalyzeDocument(context.Background(), "sales.csv", csv)
	require.NoError(t, err)

	assert.Equal(t, 1, api.uploadCalls)
	assert.Equal(t, 1, api.messageCalls)
	assert.Equal(t, 1, api.runCalls)
	require.Len(t, result.Charts, 1)
	assert.Equal(t, "Revenue", result.Charts[0].Title)
	assert.Len(t, result.Insights, 1)
	assert.Equal(t, 3, result.Metadata.RowCount)
	assert.Contains(t, result.Summary, "steady growth")
	assert.NotContains(t, result.Summary, "CHART_START")
}

func TestAnalyzeDocumentPropagatesUploadFailure(t *testing.T) {
	api := &fakeAssistantAPI{
		failUpload: &entity.RemoteAPIError{Status: 500, Message: "storage offline"},
	}
	orch, _ := testOrchestrator(api, nil, nil)

	_, err := orch.AnalyzeDocument(context.Background(), "sales.csv", []byte("a,b\n1,2\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrRemoteAPI))
	assert.Equal(t, 0, api.runCalls)
}

func TestSendMessageCacheHitSkipsRemoteRun(t *testing.T) {
	api := &fakeAssistantAPI{}
	cache := &fakeAnswerCache{hit: &entity.CachedAnswer{
		Question: "what grew",
		Answer:   sampleReply,
		Score:    0.97,
	}}
	orch, _ := testOrchestrator(api, &fakeEmbedder{}, cache)

	reply, err := orch.SendMessage(context.Background(), "what grew the most?")
	require.NoError(t, err)
	assert.True(t, reply.Cached)
	assert.Equal(t, 0, api.runCalls)
	require.Len(t, reply.Charts, 1)
}

func TestSendMessageCacheMissRunsAssistant(t *testing.T) {
	api := &fakeAssistantAPI{
		runStatuses: []entity.RunStatus{entity.RunCompleted},
		reply:       sampleReply,
	}
	cache := &fakeAnswerCache{}
	orch, _ := testOrchestrator(api, &fakeEmbedder{}, cache)

	reply, err := orch.SendMessage(context.Background(), "how did APAC do?")
	require.NoError(t, err)
	assert.False(t, reply.Cached)
	assert.Equal(t, 1, api.runCalls)
	require.Len(t, reply.Charts, 1)

	// The answer is cached in the background.
	require.Eventually(t, func() bool { return cache.savedCount() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestSendMessageEmbedderFailureFallsThrough(t *testing.T) {
	api := &fakeAssistantAPI{
		runStatuses: []entity.RunStatus{entity.RunCompleted},
		reply:       sampleReply,
	}
	cache := &fakeAnswerCache{}
	orch, _ := testOrchestrator(api, &fakeEmbedder{fail: true}, cache)

	reply, err := orch.SendMessage(context.Background(), "anything?")
	require.NoError(t, err)
	assert.False(t, reply.Cached)
	assert.Equal(t, 1, api.runCalls)
	assert.Equal(t, 0, cache.savedCount())
}

func TestResetClearsSessionAndCounters(t *testing.T) {
	api := &fakeAssistantAPI{
		runStatuses: []entity.RunStatus{entity.RunCompleted, entity.RunCompleted},
		reply:       sampleReply,
	}
	orch, stats := testOrchestrator(api, nil, nil)

	_, err := orch.AnalyzeDocument(context.Background(), "a.csv", []byte("h\n1\n"))
	require.NoError(t, err)

	orch.Reset()
	assert.Equal(t, 1, stats.resets)

	_, err = orch.SendMessage(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, 2, api.assistantCalls, "reset must force a new remote session")
}

func TestConcurrentAnalyzeAndChat(t *testing.T) {
	statuses := make([]entity.RunStatus, 16)
	for i := range statuses {
		statuses[i] = entity.RunCompleted
	}
	api := &fakeAssistantAPI{
		runStatuses: statuses,
		reply:       sampleReply,
	}
	orch, _ := testOrchestrator(api, nil, nil)

	csv := []byte("region,v\nEMEA,3\nAPAC,2\nAMER,4\n")
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := orch.AnalyzeDocument(context.Background(), "sales.csv", csv)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := orch.SendMessage(context.Background(), "what changed?")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCountDataRows(t *testing.T) {
	assert.Equal(t, 3, countDataRows([]byte("h1,h2\n1,2\n3,4\n5,6\n")))
	assert.Equal(t, 0, countDataRows([]byte("header-only\n")))
	assert.Equal(t, 0, countDataRows(nil))
	assert.Equal(t, 0, countDataRows([]byte{0x00, 0x01, 0x02}))
}
