package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/bizchat/pkg/auth"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type typingCall struct {
	userID, conversationID string
	active                 bool
}

type fakeTypist struct {
	mu    sync.Mutex
	calls []typingCall
}

func (f *fakeTypist) Typing(_ context.Context, userID, conversationID string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, typingCall{userID, conversationID, active})
	return nil
}

func (f *fakeTypist) snapshot() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.calls...)
}

func setup(t *testing.T) (*httptest.Server, *auth.Verifier, *registry.Local, *fakeTypist) {
	t.Helper()
	v := auth.NewVerifier("test-secret")
	reg := registry.NewLocal()
	typist := &fakeTypist{}
	srv := httptest.NewServer(NewHandler(v, reg, typist))
	t.Cleanup(srv.Close)
	return srv, v, reg, typist
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandshakeRequiresToken(t *testing.T) {
	srv, _, reg, _ := setup(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv)+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Empty(t, reg.HandlesFor("bob"))
}

func TestClientLifecycle(t *testing.T) {
	srv, v, reg, typist := setup(t)
	token, err := v.GenerateToken("bob", time.Hour)
	require.NoError(t, err)

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(reg.HandlesFor("bob")) == 1 }, time.Second, 10*time.Millisecond)
	h := reg.HandlesFor("bob")[0]

	frame, err := model.Event{Name: model.EventMessageRead, Data: model.ReadReceipt{ConversationID: "c1", ReaderID: "alice", Count: 1}}.Encode()
	require.NoError(t, err)
	require.NoError(t, h.Send(context.Background(), frame))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(frame), string(got))

	require.NoError(t, conn.WriteJSON(model.ClientFrame{Type: model.FrameTyping, ConversationID: "c1", Active: true}))
	require.Eventually(t, func() bool { return len(typist.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, typingCall{"bob", "c1", true}, typist.snapshot()[0])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return len(reg.HandlesFor("bob")) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, h.Send(context.Background(), frame), ErrClosed)
}

func TestSendClosesSlowClient(t *testing.T) {
	server, client := websocketPair(t)
	defer client.Close()

	c := newClient("bob", server)
	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, c.Send(context.Background(), []byte("{}")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Send(ctx, []byte("{}")), ErrSlowConsumer)
	assert.ErrorIs(t, c.Send(context.Background(), []byte("{}")), ErrClosed)
}

// websocketPair returns the server and client ends of a live connection
// with no pumps attached.
func websocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	serverSide := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	select {
	case conn := <-serverSide:
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("no server connection")
		return nil, nil
	}
}
