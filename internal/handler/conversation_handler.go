package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mythsumon/job-sub002/internal/lifecycle"
	"github.com/mythsumon/job-sub002/internal/model"
	"github.com/mythsumon/job-sub002/internal/service"
)

type ConversationHandler struct {
	svc service.ConversationService
}

func NewConversationHandler(svc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type RoomResponse struct {
	ID                uint64  `json:"id"`
	ParticipantA      string  `json:"participantA"`
	ParticipantB      string  `json:"participantB"`
	SubjectJobID      uint64  `json:"subjectJobId"`
	Status            string  `json:"status"`
	ClosedBy          *string `json:"closedBy,omitempty"`
	ClosedAt          *string `json:"closedAt,omitempty"`
	ReopenRequestedBy *string `json:"reopenRequestedBy,omitempty"`
	ReopenRequestedAt *string `json:"reopenRequestedAt,omitempty"`
	LastMessageAt     string  `json:"lastMessageAt"`
	UnreadCount       int64   `json:"unreadCount"`
	Role              string  `json:"role"`
	CanSend           bool    `json:"canSend"`
	CanAcceptReopen   bool    `json:"canAcceptReopen"`
}

type MessageResponse struct {
	ID              uint64  `json:"id"`
	RoomID          uint64  `json:"roomId"`
	SenderID        string  `json:"senderId"`
	Body            string  `json:"body"`
	Kind            string  `json:"kind"`
	ClientMessageID *string `json:"clientMessageId,omitempty"`
	ReadByRecipient bool    `json:"readByRecipient"`
	SentAt          string  `json:"sentAt"`
}

type OpenRoomRequest struct {
	JobID       uint64 `json:"jobId" validate:"required"`
	CandidateID string `json:"candidateId" validate:"required,max=128"`
}

type MessageRequest struct {
	Body            string `json:"body" validate:"required,max=5000"`
	Kind            string `json:"kind" validate:"omitempty,oneof=text"`
	ClientMessageID string `json:"clientMessageId" validate:"omitempty,uuid"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toRoomResponse(rm *model.Room, viewer string) RoomResponse {
	return RoomResponse{
		ID:                rm.ID,
		ParticipantA:      rm.ParticipantA,
		ParticipantB:      rm.ParticipantB,
		SubjectJobID:      rm.SubjectJobID,
		Status:            string(rm.Status),
		ClosedBy:          rm.ClosedBy,
		ClosedAt:          formatTimePtr(rm.ClosedAt),
		ReopenRequestedBy: rm.ReopenRequestedBy,
		ReopenRequestedAt: formatTimePtr(rm.ReopenRequestedAt),
		LastMessageAt:     formatTime(rm.LastMessageAt),
		UnreadCount:       rm.UnreadCount,
		Role:              lifecycle.RoleOf(rm, viewer).String(),
		CanSend:           lifecycle.SendBlocked(rm) == nil,
		CanAcceptReopen:   lifecycle.CanAcceptReopen(rm, viewer),
	}
}

func toMessageResponse(m *model.Message) MessageResponse {
	return MessageResponse{
		ID:              m.ID,
		RoomID:          m.RoomID,
		SenderID:        m.SenderID,
		Body:            m.Body,
		Kind:            string(m.Kind),
		ClientMessageID: m.ClientMessageID,
		ReadByRecipient: m.ReadByRecipient,
		SentAt:          formatTime(m.SentAt),
	}
}

func callerAndRoom(c echo.Context) (string, uint64, error) {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return "", 0, c.JSON(http.StatusUnauthorized, NewErrorResponse(CodeUnauthorized, "missing uid"))
	}
	roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || roomID == 0 {
		return "", 0, c.JSON(http.StatusBadRequest, NewErrorResponse(CodeBadRequest, "invalid conversation id"))
	}
	return uid, roomID, nil
}

func (h *ConversationHandler) List(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse(CodeUnauthorized, "missing uid"))
	}
	rooms, err := h.svc.ListRooms(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err, "fetch conversations")
	}
	resp := make([]RoomResponse, 0, len(rooms))
	for i := range rooms {
		resp = append(resp, toRoomResponse(&rooms[i], uid))
	}
	return c.JSON(http.StatusOK, resp)
}

// Open starts (or returns) the conversation between the calling employer and
// a candidate about a job posting.
func (h *ConversationHandler) Open(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	if uid == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse(CodeUnauthorized, "missing uid"))
	}
	var req OpenRoomRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	rm, err := h.svc.Open(c.Request().Context(), req.JobID, uid, req.CandidateID)
	if err != nil {
		return writeError(c, err, "open conversation")
	}
	return c.JSON(http.StatusOK, toRoomResponse(rm, uid))
}

func (h *ConversationHandler) Get(c echo.Context) error {
	uid, roomID, err := callerAndRoom(c)
	if uid == "" {
		return err
	}
	rm, err := h.svc.Get(c.Request().Context(), roomID, uid)
	if err != nil {
		return writeError(c, err, "fetch conversation")
	}
	return c.JSON(http.StatusOK, toRoomResponse(rm, uid))
}

func (h *ConversationHandler) ListMessages(c echo.Context) error {
	uid, roomID, err := callerAndRoom(c)
	if uid == "" {
		return err
	}
	msgs, err := h.svc.ListMessages(c.Request().Context(), roomID, uid)
	if err != nil {
		return writeError(c, err, "fetch messages")
	}
	resp := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		resp = append(resp, toMessageResponse(&msgs[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ConversationHandler) CreateMessage(c echo.Context) error {
	uid, roomID, err := callerAndRoom(c)
	if uid == "" {
		return err
	}
	var req MessageRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	msg, err := h.svc.SendMessage(c.Request().Context(), roomID, uid, service.SendInput{
		Body:            req.Body,
		Kind:            model.MessageKind(req.Kind),
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		return writeError(c, err, "send message")
	}
	return c.JSON(http.StatusCreated, toMessageResponse(msg))
}

func (h *ConversationHandler) Close(c echo.Context) error {
	return h.transition(c, h.svc.Close, "close conversation")
}

func (h *ConversationHandler) RequestReopen(c echo.Context) error {
	return h.transition(c, h.svc.RequestReopen, "request reopen")
}

func (h *ConversationHandler) AcceptReopen(c echo.Context) error {
	return h.transition(c, h.svc.AcceptReopen, "accept reopen")
}

func (h *ConversationHandler) transition(c echo.Context, apply func(context.Context, uint64, string) (*model.Room, error), what string) error {
	uid, roomID, err := callerAndRoom(c)
	if uid == "" {
		return err
	}
	rm, err := apply(c.Request().Context(), roomID, uid)
	if err != nil {
		return writeError(c, err, what)
	}
	return c.JSON(http.StatusOK, toRoomResponse(rm, uid))
}

func (h *ConversationHandler) MarkRead(c echo.Context) error {
	uid, roomID, err := callerAndRoom(c)
	if uid == "" {
		return err
	}
	if err := h.svc.MarkRead(c.Request().Context(), roomID, uid); err != nil {
		return writeError(c, err, "mark read")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ConversationHandler) Delete(c echo.Context) error {
	uid, roomID, err := callerAndRoom(c)
	if uid == "" {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), roomID, uid); err != nil {
		return writeError(c, err, "delete conversation")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
