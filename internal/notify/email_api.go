package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmailAPI delivers mail through an HTTP email provider (Resend-compatible
// payload). Chosen over SMTP purely by configuration.
type EmailAPI struct {
	URL    string
	Token  string
	From   string
	To     string
	Client *http.Client
}

func NewEmailAPI(url, token, from, to string) *EmailAPI {
	if url == "" {
		return nil
	}
	return &EmailAPI{
		URL:    url,
		Token:  token,
		From:   from,
		To:     to,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *EmailAPI) Name() string { return "email_api" }

func (e *EmailAPI) Send(ctx context.Context, msg Message) error {
	payload, _ := json.Marshal(map[string]any{
		"from":    e.From,
		"to":      []string{e.To},
		"subject": msg.Title,
		"text":    msg.Text,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email API returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
