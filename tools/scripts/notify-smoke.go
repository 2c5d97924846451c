// Package main provides a CI-friendly smoke test for the notifications feed.
//
// It validates:
//   - REST login returns an access token
//   - the WebSocket handshake accepts the token as a query parameter
//   - the keepalive frame is accepted (the socket stays open)
//   - optionally, one pushed notification decodes as a JSON object
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "teamdash/contracts/notifications/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 64 << 10

func main() {
	var (
		apiURL  = flag.String("api", "http://localhost:9000/api/v1", "REST base URL")
		email   = flag.String("email", os.Getenv("TEAMDASH_SMOKE_EMAIL"), "account email")
		pass    = flag.String("password", os.Getenv("TEAMDASH_SMOKE_PASSWORD"), "account password")
		format  = flag.String("ping", "json", "keepalive format: json or text")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		wait    = flag.Duration("wait", 0, "Wait this long for one notification (0 skips)")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateAPIURL(*apiURL)
	if err != nil {
		fatalf("invalid -api: %v", err)
	}
	if strings.TrimSpace(*email) == "" || *pass == "" {
		fatalf("-email and -password (or TEAMDASH_SMOKE_EMAIL/TEAMDASH_SMOKE_PASSWORD) are required")
	}

	root := context.Background()

	token := mustLogin(root, *apiURL, *email, *pass, *timeout)
	if *verbose {
		fmt.Printf("login ok: token_len=%d\n", len(token))
	}

	wsURL := notificationsURL(base, token)
	conn := mustConnect(root, wsURL, *timeout)
	defer closeWS(conn)
	if *verbose {
		fmt.Printf("connected: %s\n", redact(wsURL))
	}

	mustPing(root, conn, *format, *timeout)

	if *wait <= 0 {
		mustStayOpen(root, conn, 750*time.Millisecond)
		fmt.Println("OK: handshake and keepalive")
		return
	}

	msg := mustReadNotification(root, conn, *wait)
	fmt.Printf("OK: event=%s fields=%d\n", msg.EventName(), len(msg))
}

func validateAPIURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

// notificationsURL keeps only the origin of the REST URL.
func notificationsURL(base *url.URL, token string) string {
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: base.Host, Path: v1.Path}
	q := url.Values{}
	q.Set(v1.TokenParam, token)
	u.RawQuery = q.Encode()
	return u.String()
}

func redact(wsURL string) string {
	if i := strings.Index(wsURL, "?"); i >= 0 {
		return wsURL[:i] + "?" + v1.TokenParam + "=***"
	}
	return wsURL
}

func mustLogin(parent context.Context, apiURL, email, password string, stepTimeout time.Duration) string {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiURL, "/")+"/user/login", bytes.NewReader(body))
	if err != nil {
		fatalf("build login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("login: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		fatalf("login: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out struct {
		Token struct {
			Access string `json:"access"`
		} `json:"token"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		fatalf("decode login response: %v", err)
	}
	if out.Token.Access == "" {
		fatalf("login response missing token.access")
	}
	return out.Token.Access
}

func mustConnect(parent context.Context, wsURL string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustPing(parent context.Context, conn *websocket.Conn, format string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var frame []byte
	switch format {
	case "json":
		frame, _ = json.Marshal(v1.Ping{Type: v1.PingType})
	case "text":
		frame = []byte(v1.PingText)
	default:
		fatalf("unknown -ping %q: want json or text", format)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		fatalf("write ping: %v", err)
	}
}

// mustStayOpen fails if the server closes the socket within wait.
func mustStayOpen(parent context.Context, conn *websocket.Conn, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	_, _, err := conn.Read(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	if status := websocket.CloseStatus(err); status != -1 {
		fatalf("server closed the socket after ping: status=%d", status)
	}
	fatalf("read after ping: %v", err)
}

func mustReadNotification(parent context.Context, conn *websocket.Conn, wait time.Duration) v1.Message {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			fatalf("no notification within %s: %v", wait, err)
		}
		if mt != websocket.MessageText {
			continue
		}
		msg, err := v1.Decode(data)
		if err != nil {
			fatalf("bad notification %q: %v", data, err)
		}
		return msg
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
