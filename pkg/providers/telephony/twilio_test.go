package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

func TestTwilioClientCallSendsBasicAuthAndFormBody(t *testing.T) {
	var gotAuth string
	var gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		r.ParseForm()
		gotBody = r.PostForm.Get("To") + "|" + r.PostForm.Get("From") + "|" + r.PostForm.Get("Url")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"CA123"}`))
	}))
	defer server.Close()

	c := &TwilioClient{
		httpClient:  server.Client(),
		apiBaseURL:  server.URL,
		accountSID:  "ACtest",
		authToken:   "secret",
		fromNumber:  "+10000000000",
		externalURL: "https://echo.example.com",
	}

	sid, err := c.Call(context.Background(), "+34612345678", "hi there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "CA123" {
		t.Errorf("expected sid CA123, got %q", sid)
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Errorf("expected basic auth header, got %q", gotAuth)
	}
	if !strings.Contains(gotBody, "+34612345678") || !strings.Contains(gotBody, "+10000000000") {
		t.Errorf("expected To/From in form body, got %q", gotBody)
	}
	if !strings.Contains(gotBody, "twilio/voice/outbound") {
		t.Errorf("expected outbound webhook url in form body, got %q", gotBody)
	}
	if !strings.Contains(gotBody, "message=hi") {
		t.Errorf("expected percent-encoded message in webhook url, got %q", gotBody)
	}
}

func TestTwilioClientCallNonOKStatusIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"auth failed"}`))
	}))
	defer server.Close()

	c := &TwilioClient{
		httpClient: server.Client(),
		apiBaseURL: server.URL,
		accountSID: "ACtest",
		authToken:  "wrong",
		fromNumber: "+10000000000",
	}

	_, err := c.Call(context.Background(), "+34612345678", "")
	if !errors.Is(err, clienterr.ErrAPI) {
		t.Fatalf("expected an API error for a non-2xx response, got %v", err)
	}
}
