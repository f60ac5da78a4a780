package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/notification"
)

var apiAddr string

func call(method, path, token string, body any) json.RawMessage {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, apiAddr+path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("request failed", "method", method, "path", path, "err", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || !env.Success {
		log.Fatal("unexpected response", "method", method, "path", path, "status", resp.StatusCode, "body", string(raw))
	}
	log.Info("ok", "method", method, "path", path, "status", resp.StatusCode)
	return env.Data
}

func login(userID string) string {
	var out struct {
		Token string `json:"token"`
	}
	json.Unmarshal(call(http.MethodPost, "/dev/login", "", map[string]string{"userId": userID}), &out)
	return out.Token
}

func main() {
	flag.StringVar(&apiAddr, "api", "http://localhost:8081", "api service address")
	brokers := flag.String("brokers", "", "comma separated kafka brokers; publishes a domain event when set")
	topic := flag.String("topic", "notification-events", "domain event topic")
	flag.Parse()

	alice, bob := login("verify_alice"), login("verify_bob")

	var conv model.Conversation
	json.Unmarshal(call(http.MethodPost, "/conversations", alice, map[string]any{
		"type":         model.ConversationUserUser,
		"participants": []string{"verify_alice", "verify_bob"},
	}), &conv)
	log.Info("conversation", "id", conv.ID)

	call(http.MethodPost, "/conversations/"+conv.ID+"/messages", alice, model.Content{Type: model.ContentText, Text: "hello from verify_api"})
	log.Info("bob's messages", "data", string(call(http.MethodGet, "/conversations/"+conv.ID+"/messages", bob, nil)))
	call(http.MethodPatch, "/conversations/"+conv.ID+"/read", bob, nil)
	log.Info("alice's presence", "data", string(call(http.MethodGet, "/users/verify_alice/presence", bob, nil)))

	if *brokers != "" {
		pub := notification.NewPublisher(strings.Split(*brokers, ","), *topic)
		defer pub.Close()
		payload, _ := json.Marshal(model.FollowerPayload{FollowerID: "verify_alice"})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := pub.Publish(ctx, model.DomainEvent{
			RecipientID: "verify_bob",
			Type:        model.NotificationNewFollower,
			Title:       "New follower",
			Message:     "verify_alice started following you",
			Payload:     payload,
		})
		if err != nil {
			log.Fatal("publish failed", "err", err)
		}
		time.Sleep(2 * time.Second)
	}

	log.Info("bob's notifications", "data", string(call(http.MethodGet, "/notifications?page=1&limit=5", bob, nil)))
	log.Info("verification finished")
}
