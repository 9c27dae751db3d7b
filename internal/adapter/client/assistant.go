package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"datalens-core/internal/domain/entity"
)

// AssistantClient drives the remote assistants REST protocol: files, threads,
// messages and runs. It implements repository.AssistantAPI.
type AssistantClient struct {
	transport *Transport
	model     string
}

func NewAssistantClient(transport *Transport, model string) *AssistantClient {
	return &AssistantClient{transport: transport, model: model}
}

type assistantResource struct {
	ID string `json:"id"`
}

type threadResource struct {
	ID string `json:"id"`
}

type fileResource struct {
	ID string `json:"id"`
}

type runResource struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id"`
	Status      string `json:"status"`
	LastError   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageListEnvelope struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

func (c *AssistantClient) CreateAssistant(ctx context.Context, name, instructions string) (string, error) {
	body := map[string]any{
		"model":        c.model,
		"name":         name,
		"instructions": instructions,
		"tools":        []map[string]string{{"type": "code_interpreter"}},
	}
	raw, err := c.transport.Send(ctx, http.MethodPost, "/assistants", body)
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	var res assistantResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode assistant: %w", err)
	}
	return res.ID, nil
}

func (c *AssistantClient) CreateThread(ctx context.Context) (string, error) {
	raw, err := c.transport.Send(ctx, http.MethodPost, "/threads", map[string]any{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	var res threadResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode thread: %w", err)
	}
	return res.ID, nil
}

func (c *AssistantClient) UploadFile(ctx context.Context, fileName string, data []byte) (string, error) {
	raw, err := c.transport.SendMultipart(ctx, "/files",
		map[string]string{"purpose": "assistants"}, fileName, data)
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	var res fileResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode file: %w", err)
	}
	return res.ID, nil
}

func (c *AssistantClient) CreateMessage(ctx context.Context, threadID, content string, fileIDs []string) error {
	body := map[string]any{
		"role":    "user",
		"content": content,
	}
	if len(fileIDs) > 0 {
		attachments := make([]map[string]any, 0, len(fileIDs))
		for _, id := range fileIDs {
			attachments = append(attachments, map[string]any{
				"file_id": id,
				"tools":   []map[string]string{{"type": "code_interpreter"}},
			})
		}
		body["attachments"] = attachments
	}
	_, err := c.transport.Send(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (c *AssistantClient) CreateRun(ctx context.Context, threadID, assistantID string) (entity.RunHandle, error) {
	raw, err := c.transport.Send(ctx, http.MethodPost, "/threads/"+threadID+"/runs",
		map[string]any{"assistant_id": assistantID})
	if err != nil {
		return entity.RunHandle{}, fmt.Errorf("create run: %w", err)
	}
	return decodeRun(raw, threadID)
}

func (c *AssistantClient) GetRun(ctx context.Context, threadID, runID string) (entity.RunHandle, error) {
	raw, err := c.transport.Send(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+runID, nil)
	if err != nil {
		return entity.RunHandle{}, fmt.Errorf("get run: %w", err)
	}
	return decodeRun(raw, threadID)
}

// LatestAssistantMessage returns the text of the newest assistant-role
// message on the thread. The remote API lists messages newest first.
func (c *AssistantClient) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	raw, err := c.transport.Send(ctx, http.MethodGet, "/threads/"+threadID+"/messages", nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	var envelope messageListEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("decode messages: %w", err)
	}
	for _, msg := range envelope.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Type == "text" && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", entity.ErrResourceNotFound
}

func decodeRun(raw json.RawMessage, threadID string) (entity.RunHandle, error) {
	var res runResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return entity.RunHandle{}, fmt.Errorf("decode run: %w", err)
	}
	handle := entity.RunHandle{
		ID:          res.ID,
		ThreadID:    res.ThreadID,
		AssistantID: res.AssistantID,
		Status:      entity.RunStatus(res.Status),
	}
	if handle.ThreadID == "" {
		handle.ThreadID = threadID
	}
	if res.LastError != nil {
		handle.LastError = res.LastError.Message
	}
	return handle, nil
}
