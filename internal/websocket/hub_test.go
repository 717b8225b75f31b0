package websocket

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/robertspest/reorderdesk/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

func newServer(t *testing.T, secret []byte) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()
	r := gin.New()
	auth := middleware.NewAuth(secret)
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, auth) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func token(t *testing.T, secret []byte, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1", "role": role, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestServeWs_RejectsInvalidToken(t *testing.T) {
	_, srv := newServer(t, []byte("s"))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
}

func TestPublish_ReachesClient(t *testing.T) {
	secret := []byte("s")
	hub, srv := newServer(t, secret)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token(t, secret, "VIEW")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	hub.Publish("reorder.sent", map[string]string{"id": "r1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if msg.Event != "reorder.sent" || msg.Data["id"] != "r1" {
		t.Errorf("unexpected message %s", raw)
	}
}

func TestPublish_DoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish("stock.adjusted", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestServeWs_AfterStopClosesConnection(t *testing.T) {
	secret := []byte("s")
	hub, srv := newServer(t, secret)
	hub.Stop()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token(t, secret, "VIEW")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	var netErr net.Error
	if err == nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		t.Fatalf("expected the server to close the connection, got %v", err)
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("expected no registered clients, got %d", n)
	}
}
