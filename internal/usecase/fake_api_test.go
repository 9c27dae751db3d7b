package usecase

import (
	"context"
	"fmt"
	"sync"

	"datalens-core/internal/domain/entity"
)

// fakeAssistantAPI scripts the remote protocol for tests. Run statuses are
// played back in order; counters record how often each verb was hit. Safe
// for concurrent use so orchestration tests can exercise parallel requests.
type fakeAssistantAPI struct {
	mu sync.Mutex

	assistantCalls int
	threadCalls    int
	uploadCalls    int
	messageCalls   int
	runCalls       int
	getRunCalls    int

	runStatuses []entity.RunStatus
	runError    string
	reply       string

	failUpload error
}

func (f *fakeAssistantAPI) CreateAssistant(ctx context.Context, name, instructions string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assistantCalls++
	return fmt.Sprintf("asst_%d", f.assistantCalls), nil
}

func (f *fakeAssistantAPI) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadCalls++
	return fmt.Sprintf("thread_%d", f.threadCalls), nil
}

func (f *fakeAssistantAPI) UploadFile(ctx context.Context, fileName string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.failUpload != nil {
		return "", f.failUpload
	}
	return fmt.Sprintf("file_%d", f.uploadCalls), nil
}

func (f *fakeAssistantAPI) CreateMessage(ctx context.Context, threadID, content string, fileIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageCalls++
	return nil
}

func (f *fakeAssistantAPI) CreateRun(ctx context.Context, threadID, assistantID string) (entity.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	return entity.RunHandle{
		ID:          fmt.Sprintf("run_%d", f.runCalls),
		ThreadID:    threadID,
		AssistantID: assistantID,
		Status:      entity.RunQueued,
	}, nil
}

func (f *fakeAssistantAPI) GetRun(ctx context.Context, threadID, runID string) (entity.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRunCalls++
	status := entity.RunInProgress
	if len(f.runStatuses) > 0 {
		status = f.runStatuses[0]
		f.runStatuses = f.runStatuses[1:]
	}
	handle := entity.RunHandle{ID: runID, ThreadID: threadID, Status: status}
	if status == entity.RunFailed {
		handle.LastError = f.runError
	}
	return handle, nil
}

func (f *fakeAssistantAPI) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, nil
}
