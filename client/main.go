package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/presentation"
)

// session is the terminal's view of one open conversation.
type session struct {
	mu       sync.Mutex
	self     string
	pane     presentation.Pane
	composer presentation.Composer
	typing   *presentation.TypingIndicator
}

func (s *session) handle(raw []byte) {
	ev, err := model.DecodeEvent(raw)
	if err != nil {
		log.Debug("undecodable frame", "raw", string(raw))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch data := ev.Data.(type) {
	case *model.Message:
		if s.pane.Apply(ev) && data.SenderID != s.self {
			fmt.Printf("\r%s: %s\n> ", data.SenderID, data.Snippet())
		}
	case *model.ReadReceipt:
		if s.pane.Apply(ev) && data.Count > 0 {
			fmt.Printf("\r%s read %d message(s)\n> ", data.ReaderID, data.Count)
		}
	case *model.MessageDeleted:
		s.pane.Apply(ev)
	case *model.TypingState:
		if s.typing.Apply(ev) {
			if label := s.typing.Label(data.ConversationID); label != "" {
				fmt.Printf("\r%s\n> ", label)
			}
		}
	case *model.Notification:
		fmt.Printf("\r[notification] %s: %s\n> ", data.Title, data.Message)
	}
}

func (s *session) send(ctx context.Context, api *apiClient, text string) {
	s.mu.Lock()
	tempID, err := s.composer.Submit(model.Content{Type: model.ContentText, Text: text})
	convID := s.pane.ConversationID()
	s.mu.Unlock()
	if err != nil {
		log.Warn("cannot send", "err", err)
		return
	}

	m, err := api.send(ctx, convID, model.Content{Type: model.ContentText, Text: text})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.composer.Failed(tempID, err)
		log.Error("send failed, /retry to try again", "err", err)
		return
	}
	s.composer.Succeeded(tempID, m)
}

func (s *session) retry(ctx context.Context, api *apiClient) {
	s.mu.Lock()
	draft := s.composer.Draft()
	tempID, err := s.composer.Retry()
	convID := s.pane.ConversationID()
	s.mu.Unlock()
	if err != nil {
		log.Warn("nothing to retry", "err", err)
		return
	}

	m, err := api.send(ctx, convID, draft)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.composer.Failed(tempID, err)
		log.Error("retry failed", "err", err)
		return
	}
	s.composer.Succeeded(tempID, m)
}

func main() {
	gatewayAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	peer := flag.String("peer", "user2", "user id to chat with")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	api := newAPIClient(*apiAddr)
	log.Info("logging in", "user", *userID)
	if err := api.login(ctx, *userID); err != nil {
		log.Fatal("login failed", "err", err)
	}

	conv, err := api.direct(ctx, *userID, *peer)
	if err != nil {
		log.Fatal("could not open conversation", "err", err)
	}

	s := &session{self: *userID, typing: presentation.NewTypingIndicator(*userID)}
	s.pane.Open(conv.ID)
	history, err := api.messages(ctx, conv.ID)
	if err != nil {
		s.pane.Failed(conv.ID, err)
		log.Fatal("could not load history", "err", err)
	}
	s.pane.Loaded(conv.ID, history)
	for _, m := range s.pane.Messages() {
		fmt.Printf("%s: %s\n", m.SenderID, m.Snippet())
	}
	if err := api.markRead(ctx, conv.ID); err != nil {
		log.Warn("mark read failed", "err", err)
	}

	u := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws"}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+api.token)
	log.Info("connecting", "url", u.String(), "conversation", conv.ID)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		log.Fatal("dial failed", "err", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Debug("read stopped", "err", err)
				return
			}
			s.handle(raw)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Print("> ")
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, open := <-lines:
			if !open || text == "/quit" {
				lines = nil
				stop()
				continue
			}
			switch text {
			case "":
			case "/typing":
				frame := model.ClientFrame{Type: model.FrameTyping, ConversationID: conv.ID, Active: true}
				if err := c.WriteJSON(frame); err != nil {
					log.Error("write failed", "err", err)
				}
			case "/read":
				if err := api.markRead(ctx, conv.ID); err != nil {
					log.Error("mark read failed", "err", err)
				}
			case "/retry":
				s.retry(ctx, api)
			case "/dismiss":
				s.mu.Lock()
				s.composer.Dismiss()
				s.mu.Unlock()
			default:
				s.send(ctx, api, text)
			}
			fmt.Print("> ")
		}
	}
}
