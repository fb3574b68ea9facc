package mailer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/skygate/internal/model"
)

func TestRender_KnownPurposes(t *testing.T) {
	for _, purpose := range []model.TokenPurpose{model.TokenPurposeConfirmEmail, model.TokenPurposeDeleteAccount} {
		subject, body, err := Render(purpose, "ABCDE-FGHIJ")
		if err != nil {
			t.Fatalf("Render(%s) error: %v", purpose, err)
		}
		if subject == "" {
			t.Errorf("Render(%s) subject is empty", purpose)
		}
		if !strings.Contains(body, "ABCDE-FGHIJ") {
			t.Errorf("Render(%s) body should contain the token", purpose)
		}
	}
}

func TestRender_EscapesToken(t *testing.T) {
	_, body, err := Render(model.TokenPurposeConfirmEmail, "<script>")
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Error("token should be HTML-escaped")
	}
}

func TestRender_UnsupportedPurpose(t *testing.T) {
	_, _, err := Render(model.TokenPurposePLCOperation, "x")
	if !errors.Is(err, ErrUnsupportedPurpose) {
		t.Errorf("err = %v, want ErrUnsupportedPurpose", err)
	}
}

func TestHTTPMailer_SendToken(t *testing.T) {
	var gotForm map[string]string
	var gotUser, gotPass string
	var gotBasic bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotUser, gotPass, gotBasic = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = map[string]string{
			"from":    r.PostForm.Get("from"),
			"to":      r.PostForm.Get("to"),
			"subject": r.PostForm.Get("subject"),
			"html":    r.PostForm.Get("html"),
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"Queued"}`))
	}))
	defer ts.Close()

	m := NewHTTPMailer(ts.Client(), Config{APIURL: ts.URL, APIKey: "key-123", From: "noreply@example.com"})

	err := m.SendToken(context.Background(), model.TokenPurposeDeleteAccount, "alice@example.com", "ABCDE-FGHIJ")
	if err != nil {
		t.Fatalf("SendToken error: %v", err)
	}

	if !gotBasic || gotUser != "api" || gotPass != "key-123" {
		t.Errorf("basic auth = (%q, %q, %v), want (api, key-123, true)", gotUser, gotPass, gotBasic)
	}
	if gotForm["to"] != "alice@example.com" {
		t.Errorf("to = %q, want %q", gotForm["to"], "alice@example.com")
	}
	if gotForm["from"] != "noreply@example.com" {
		t.Errorf("from = %q", gotForm["from"])
	}
	if gotForm["subject"] != "Account Deletion Request" {
		t.Errorf("subject = %q", gotForm["subject"])
	}
	if !strings.Contains(gotForm["html"], "ABCDE-FGHIJ") {
		t.Error("html body should contain the token")
	}
}

func TestHTTPMailer_Non2xxIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	m := NewHTTPMailer(ts.Client(), Config{APIURL: ts.URL})

	err := m.SendToken(context.Background(), model.TokenPurposeConfirmEmail, "a@example.com", "T")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want status 403 error", err)
	}
}

func TestDisabled_ReturnsNotConfigured(t *testing.T) {
	err := Disabled{}.SendToken(context.Background(), model.TokenPurposeConfirmEmail, "a@example.com", "T")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
