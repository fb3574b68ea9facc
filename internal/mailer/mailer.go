// Package mailer はアカウント操作トークンをメールで届ける。
// 配信はMailgun互換のHTTP APIに対してフォーム形式でPOSTする。
package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/skygate/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// ErrNotConfigured はメール配信先APIが設定されていないことを示す。
var ErrNotConfigured = errors.New("mailer is not configured")

// ErrUnsupportedPurpose はメールテンプレートのない用途が指定されたことを示す。
var ErrUnsupportedPurpose = errors.New("unsupported token purpose")

// Mailer はトークンをアカウントのメールアドレスに送る。
type Mailer interface {
	SendToken(ctx context.Context, purpose model.TokenPurpose, to, token string) error
}

// message は用途ごとの件名とテンプレート。
type message struct {
	subject  string
	template string
}

var messages = map[model.TokenPurpose]message{
	model.TokenPurposeConfirmEmail:  {subject: "Email Confirmation", template: "confirm_email.html"},
	model.TokenPurposeDeleteAccount: {subject: "Account Deletion Request", template: "delete_account.html"},
}

// Render は用途に対応する件名とHTML本文を生成する。
func Render(purpose model.TokenPurpose, token string) (subject string, body string, err error) {
	msg, ok := messages[purpose]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedPurpose, purpose)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, msg.template, struct{ Token string }{Token: token}); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", msg.template, err)
	}
	return msg.subject, buf.String(), nil
}

// Config はHTTPMailerの設定。
type Config struct {
	APIURL string
	APIKey string
	From   string
}

// HTTPMailer はHTTP API経由でメールを送るMailer実装。
type HTTPMailer struct {
	client *http.Client
	config Config
}

// NewHTTPMailer はHTTPMailerを生成する。clientには送信先を制限したクライアントを渡す。
func NewHTTPMailer(client *http.Client, cfg Config) *HTTPMailer {
	return &HTTPMailer{client: client, config: cfg}
}

// SendToken はトークンを含むメールを1通送る。2xx以外の応答はエラーとする。
func (m *HTTPMailer) SendToken(ctx context.Context, purpose model.TokenPurpose, to, token string) error {
	subject, body, err := Render(purpose, token)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("from", m.config.From)
	form.Set("to", to)
	form.Set("subject", subject)
	form.Set("html", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.APIURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.config.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	// コネクション再利用のため読み捨てる
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	slog.Info("mail sent",
		slog.String("purpose", string(purpose)),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

// Disabled はメール配信が設定されていない場合のMailer。常にErrNotConfiguredを返す。
type Disabled struct{}

// SendToken は常にErrNotConfiguredを返す。
func (Disabled) SendToken(context.Context, model.TokenPurpose, string, string) error {
	return ErrNotConfigured
}

var (
	_ Mailer = (*HTTPMailer)(nil)
	_ Mailer = Disabled{}
)
