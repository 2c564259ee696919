// Package chatclient talks to the conversation API over HTTP and maps its
// responses onto the lifecycle error taxonomy.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/model"
)

// TokenSource returns the bearer token for the current user.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
}

func New(baseURL string, token TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type roomDTO struct {
	ID                uint64     `json:"id"`
	ParticipantA      string     `json:"participantA"`
	ParticipantB      string     `json:"participantB"`
	SubjectJobID      uint64     `json:"subjectJobId"`
	Status            string     `json:"status"`
	ClosedBy          *string    `json:"closedBy"`
	ClosedAt          *time.Time `json:"closedAt"`
	ReopenRequestedBy *string    `json:"reopenRequestedBy"`
	ReopenRequestedAt *time.Time `json:"reopenRequestedAt"`
	LastMessageAt     time.Time  `json:"lastMessageAt"`
	UnreadCount       int64      `json:"unreadCount"`
}

func (d roomDTO) toModel() model.Room {
	return model.Room{
		ID:                d.ID,
		ParticipantA:      d.ParticipantA,
		ParticipantB:      d.ParticipantB,
		SubjectJobID:      d.SubjectJobID,
		Status:            model.RoomStatus(d.Status),
		ClosedBy:          d.ClosedBy,
		ClosedAt:          d.ClosedAt,
		ReopenRequestedBy: d.ReopenRequestedBy,
		ReopenRequestedAt: d.ReopenRequestedAt,
		LastMessageAt:     d.LastMessageAt,
		UnreadCount:       d.UnreadCount,
	}
}

type messageDTO struct {
	ID              uint64    `json:"id"`
	RoomID          uint64    `json:"roomId"`
	SenderID        string    `json:"senderId"`
	Body            string    `json:"body"`
	Kind            string    `json:"kind"`
	ClientMessageID *string   `json:"clientMessageId"`
	ReadByRecipient bool      `json:"readByRecipient"`
	SentAt          time.Time `json:"sentAt"`
}

func (d messageDTO) toModel() model.Message {
	return model.Message{
		ID:              d.ID,
		RoomID:          d.RoomID,
		SenderID:        d.SenderID,
		Body:            d.Body,
		Kind:            model.MessageKind(d.Kind),
		ClientMessageID: d.ClientMessageID,
		ReadByRecipient: d.ReadByRecipient,
		SentAt:          d.SentAt,
	}
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListRooms returns the viewer's rooms; the viewer is whoever the token identifies.
func (c *Client) ListRooms(ctx context.Context) ([]model.Room, error) {
	var dtos []roomDTO
	if err := c.do(ctx, http.MethodGet, "/api/rooms", nil, &dtos); err != nil {
		return nil, err
	}
	rooms := make([]model.Room, 0, len(dtos))
	for _, d := range dtos {
		rooms = append(rooms, d.toModel())
	}
	lifecycle.SortRooms(rooms)
	return rooms, nil
}

func (c *Client) ListMessages(ctx context.Context, roomID uint64) ([]model.Message, error) {
	var dtos []messageDTO
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "/messages"), nil, &dtos); err != nil {
		return nil, err
	}
	msgs := make([]model.Message, 0, len(dtos))
	for _, d := range dtos {
		msgs = append(msgs, d.toModel())
	}
	lifecycle.SortMessages(msgs)
	return msgs, nil
}

// SendMessage posts body under clientMessageID. The server stores one message
// per id, so retrying with the same id after a transient failure is safe. An
// empty id gets a fresh one.
func (c *Client) SendMessage(ctx context.Context, roomID uint64, body string, kind model.MessageKind, clientMessageID string) (*model.Message, error) {
	if clientMessageID == "" {
		clientMessageID = uuid.NewString()
	}
	req := map[string]string{
		"body":            body,
		"kind":            string(kind),
		"clientMessageId": clientMessageID,
	}
	var d messageDTO
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, "/messages"), req, &d); err != nil {
		return nil, err
	}
	msg := d.toModel()
	return &msg, nil
}

func (c *Client) CloseRoom(ctx context.Context, roomID uint64) (*model.Room, error) {
	return c.roomAction(ctx, roomID, "/close")
}

func (c *Client) RequestReopen(ctx context.Context, roomID uint64) (*model.Room, error) {
	return c.roomAction(ctx, roomID, "/reopen-request")
}

func (c *Client) AcceptReopen(ctx context.Context, roomID uint64) (*model.Room, error) {
	return c.roomAction(ctx, roomID, "/reopen-accept")
}

func (c *Client) MarkRead(ctx context.Context, roomID uint64) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "/read"), nil, nil)
}

func (c *Client) DeleteRoom(ctx context.Context, roomID uint64) error {
	return c.do(ctx, http.MethodDelete, roomPath(roomID, ""), nil, nil)
}

// OpenRoom starts the conversation between the calling employer and a candidate.
func (c *Client) OpenRoom(ctx context.Context, jobID uint64, candidateID string) (*model.Room, error) {
	req := map[string]interface{}{"jobId": jobID, "candidateId": candidateID}
	var d roomDTO
	if err := c.do(ctx, http.MethodPost, "/api/rooms", req, &d); err != nil {
		return nil, err
	}
	rm := d.toModel()
	return &rm, nil
}

func (c *Client) roomAction(ctx context.Context, roomID uint64, suffix string) (*model.Room, error) {
	var d roomDTO
	if err := c.do(ctx, http.MethodPost, roomPath(roomID, suffix), nil, &d); err != nil {
		return nil, err
	}
	rm := d.toModel()
	return &rm, nil
}

func roomPath(roomID uint64, suffix string) string {
	return "/api/rooms/" + strconv.FormatUint(roomID, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("%w: token: %v", lifecycle.ErrUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", lifecycle.ErrTransient, err)
	}
	defer resp.Body.Close()

	resBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", lifecycle.ErrTransient, err)
	}
	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, resBody)
	}
	if out == nil || len(resBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// statusError turns an API error response into a taxonomy error.
func statusError(status int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := ae.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = lifecycle.ErrUnauthorized
	case status == http.StatusNotFound:
		kind = lifecycle.ErrNotFound
	case status == http.StatusConflict && ae.Error.Code == "conflict":
		kind = lifecycle.ErrConflict
	case status == http.StatusConflict:
		kind = lifecycle.ErrInvalidTransition
	case status == http.StatusBadRequest:
		kind = lifecycle.ErrValidation
	default:
		kind = lifecycle.ErrTransient
	}
	return fmt.Errorf("%w: %s", kind, msg)
}

// wsURL converts the API base URL into the websocket events endpoint.
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/api/rooms/events")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}
