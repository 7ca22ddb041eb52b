package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provisioner creates a meeting room at the external video provider.
// Failures here must never fail the booking that triggered them.
type Provisioner interface {
	CreateMeeting(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
}

type CreateRequest struct {
	AppointmentID string `json:"appointment_id"`
	HostEmail     string `json:"host_email"`
	Topic         string `json:"topic"`
	StartTime     string `json:"start_time"`
	Duration      int    `json:"duration"`
	Agenda        string `json:"agenda"`
}

type CreateResponse struct {
	MeetingID string `json:"meeting_id"`
	JoinURL   string `json:"join_url"`
}

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreateMeeting(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	const op = "meeting.Client.CreateMeeting"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s: provider returned %d: %s", op, resp.StatusCode, raw)
	}

	var out CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if out.JoinURL == "" {
		return nil, fmt.Errorf("%s: provider returned empty join_url", op)
	}

	return &out, nil
}
