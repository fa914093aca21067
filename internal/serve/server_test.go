package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jimshare/bae-ai/internal/chat"
	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/store"
	"github.com/jimshare/bae-ai/internal/twilio"
)

const (
	testAuthToken = "12345"
	testBaseURL   = "https://bae.example.ngrok.io"
)

type fakeReplier struct {
	mu        sync.Mutex
	reply     chat.Reply
	err       error
	got       []twilio.InboundMessage
	delivered map[string]error
}

func (f *fakeReplier) Reply(_ context.Context, msg twilio.InboundMessage) (chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return f.reply, f.err
}

func (f *fakeReplier) MarkDelivered(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered == nil {
		f.delivered = make(map[string]error)
	}
	f.delivered[id] = err
}

type fakeSender struct {
	mu   sync.Mutex
	sent [][3]string
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, from, to, body string) (*twilio.MessageResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, [3]string{from, to, body})
	if f.err != nil {
		return nil, f.err
	}
	return &twilio.MessageResource{SID: "SM-out"}, nil
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *fakeReplier) {
	t.Helper()
	replier := &fakeReplier{reply: chat.Reply{ID: "msg-1", Text: "We're open 9-5.", Status: store.StatusReplied}}
	cfg := Config{
		Host:              "127.0.0.1",
		PublicBaseURL:     testBaseURL,
		ValidateSignature: true,
		AuthToken:         testAuthToken,
		Chat:              replier,
		Logger:            zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), replier
}

func smsForm() url.Values {
	return url.Values{
		"MessageSid": {"SM123"},
		"AccountSid": {"AC123"},
		"From":       {"+15550001111"},
		"To":         {"+15550009999"},
		"Body":       {"When are you open?"},
	}
}

func signedRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sig := twilio.NewRequestValidator(testAuthToken).ComputeSignature(testBaseURL+"/sms", form)
	req.Header.Set(twilio.SignatureHeader, sig)
	return req
}

func TestSMSTextReply(t *testing.T) {
	srv, replier := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(smsForm()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "We're open 9-5." {
		t.Errorf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
	if len(replier.got) != 1 || replier.got[0].MessageSID != "SM123" || replier.got[0].Body != "When are you open?" {
		t.Errorf("replier got %+v", replier.got)
	}
}

func TestSMSRejectsBadSignature(t *testing.T) {
	srv, replier := newTestServer(t, nil)

	req := signedRequest(smsForm())
	req.Header.Set(twilio.SignatureHeader, "bogus")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden || rec.Body.String() != "Invalid request" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if len(replier.got) != 0 {
		t.Error("replier should not be called for a forged request")
	}
}

func TestSMSSignatureDisabled(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.ValidateSignature = false })

	req := signedRequest(smsForm())
	req.Header.Del(twilio.SignatureHeader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSMSMissingFields(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	form := smsForm()
	form.Del("From")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(form))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestSMSTextErrorReply(t *testing.T) {
	tests := []struct {
		name       string
		reply      chat.Reply
		err        error
		wantStatus int
	}{
		{"pipeline error", chat.Reply{Text: chat.ErrorReply}, errors.New("boom"), http.StatusInternalServerError},
		{"rate limited", chat.Reply{Text: chat.RateLimitedReply}, chat.ErrRateLimited, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, replier := newTestServer(t, nil)
			replier.reply, replier.err = tt.reply, tt.err

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, signedRequest(smsForm()))

			if rec.Code != tt.wantStatus || rec.Body.String() != tt.reply.Text {
				t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSMSTwiMLReply(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.ReplyMode = config.ReplyModeTwiML })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(smsForm()))

	if ct := rec.Header().Get("Content-Type"); ct != twilio.ContentTypeXML {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Response><Message>We&#39;re open 9-5.</Message></Response>") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestSMSRESTReply(t *testing.T) {
	sender := &fakeSender{}
	srv, replier := newTestServer(t, func(c *Config) {
		c.ReplyMode = config.ReplyModeREST
		c.Sender = sender
		c.FromNumber = "+15550000000"
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, signedRequest(smsForm()))
	srv.deliveries.Wait()

	if !strings.Contains(rec.Body.String(), "<Response></Response>") {
		t.Errorf("webhook should be acknowledged with empty TwiML, got %q", rec.Body.String())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}
	if got := sender.sent[0]; got != [3]string{"+15550000000", "+15550001111", "We're open 9-5."} {
		t.Errorf("sent = %v", got)
	}
	if err, ok := replier.delivered["msg-1"]; !ok || err != nil {
		t.Errorf("delivered = %v", replier.delivered)
	}
}

func TestSMSRESTDeliveryFailureMarked(t *testing.T) {
	sender := &fakeSender{err: errors.New("twilio: HTTP 400")}
	srv, replier := newTestServer(t, func(c *Config) {
		c.ReplyMode = config.ReplyModeREST
		c.Sender = sender
	})

	srv.Handler().ServeHTTP(httptest.NewRecorder(), signedRequest(smsForm()))
	srv.deliveries.Wait()

	if sender.sent[0][0] != "+15550009999" {
		t.Errorf("from should default to the inbound To number, got %q", sender.sent[0][0])
	}
	if replier.delivered["msg-1"] == nil {
		t.Error("delivery failure should be reported to the replier")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, func(c *Config) { c.Version = "1.2.3" })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true || body["status"] != "healthy" || body["version"] != "1.2.3" {
		t.Errorf("body = %v", body)
	}
}

type stubRecorder struct {
	store.Nop
	messages []store.Message
	filter   store.Filter
}

func (s *stubRecorder) List(f store.Filter) ([]store.Message, error) {
	s.filter = f
	return s.messages, nil
}

func (s *stubRecorder) Stats() (*store.Stats, error) {
	return &store.Stats{Total: len(s.messages), DistinctSenders: 1}, nil
}

func TestAPIAuth(t *testing.T) {
	rec := &stubRecorder{messages: []store.Message{{ID: "a", From: "+1", Body: "hi"}}}

	tests := []struct {
		name   string
		host   string
		apiKey string
		header map[string]string
		want   int
	}{
		{"loopback without key", "127.0.0.1", "", nil, http.StatusOK},
		{"public without key", "0.0.0.0", "", nil, http.StatusForbidden},
		{"missing key", "0.0.0.0", "secret", nil, http.StatusUnauthorized},
		{"wrong key", "0.0.0.0", "secret", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key", "0.0.0.0", "secret", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "0.0.0.0", "secret", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(c *Config) {
				c.Host = tt.host
				c.APIKey = tt.apiKey
				c.Store = rec
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %q)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAPIMessages(t *testing.T) {
	rec := &stubRecorder{messages: []store.Message{{ID: "a", From: "+1", Body: "hi"}}}
	srv, _ := newTestServer(t, func(c *Config) { c.Store = rec })

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/messages?from=%2B1&limit=5", nil))

	var body struct {
		Success  bool            `json:"success"`
		Count    int             `json:"count"`
		Messages []store.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Count != 1 || body.Messages[0].ID != "a" {
		t.Errorf("body = %+v", body)
	}
	if rec.filter != (store.Filter{From: "+1", Limit: 5}) {
		t.Errorf("filter = %+v", rec.filter)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/messages?limit=0", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), ErrCodeNotFound) {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		return Config{Port: 8000, AuthToken: "t", ValidateSignature: true, Chat: &fakeReplier{}}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 70000 }, "invalid port"},
		{"bad mode", func(c *Config) { c.ReplyMode = "fax" }, "invalid reply mode"},
		{"relative base url", func(c *Config) { c.PublicBaseURL = "bae.ngrok.io" }, "invalid public base URL"},
		{"signature without token", func(c *Config) { c.AuthToken = "" }, "auth token"},
		{"rest without credentials", func(c *Config) { c.ReplyMode = config.ReplyModeREST }, "account SID"},
		{"rest with credentials", func(c *Config) { c.ReplyMode = config.ReplyModeREST; c.AccountSID = "AC1" }, ""},
		{"no chat", func(c *Config) { c.Chat = nil }, "no reply service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestIsLoopbackHost(t *testing.T) {
	for host, want := range map[string]bool{
		"127.0.0.1": true,
		"localhost": true,
		"[::1]":     true,
		"::1":       true,
		"0.0.0.0":   false,
		"10.0.0.5":  false,
		"bae.local": false,
	} {
		if got := isLoopbackHost(host); got != want {
			t.Errorf("isLoopbackHost(%q) = %v, want %v", host, got, want)
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestStartAndShutdown(t *testing.T) {
	port := freePort(t)
	srv, _ := newTestServer(t, func(c *Config) { c.Port = port })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get(healthURL)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("server never came up: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
