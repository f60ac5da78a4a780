package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mahaj/bizchat/pkg/model"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 10 * time.Second}}
}

func (a *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: %s", method, path, env.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (a *apiClient) login(ctx context.Context, userID string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := a.do(ctx, http.MethodPost, "/dev/login", map[string]string{"userId": userID}, &resp); err != nil {
		return err
	}
	a.token = resp.Token
	return nil
}

func (a *apiClient) direct(ctx context.Context, self, peer string) (*model.Conversation, error) {
	var conv model.Conversation
	body := map[string]any{"type": model.ConversationUserUser, "participants": []string{self, peer}}
	if err := a.do(ctx, http.MethodPost, "/conversations", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *apiClient) messages(ctx context.Context, convID string) ([]*model.Message, error) {
	var msgs []*model.Message
	err := a.do(ctx, http.MethodGet, "/conversations/"+convID+"/messages", nil, &msgs)
	return msgs, err
}

func (a *apiClient) send(ctx context.Context, convID string, content model.Content) (*model.Message, error) {
	var m model.Message
	if err := a.do(ctx, http.MethodPost, "/conversations/"+convID+"/messages", content, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (a *apiClient) markRead(ctx context.Context, convID string) error {
	return a.do(ctx, http.MethodPatch, "/conversations/"+convID+"/read", nil, nil)
}
