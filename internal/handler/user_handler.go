package handler

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/mythsumon/job-sub002/internal/service"
)

// ProfileLookup is satisfied by *auth.Client.
type ProfileLookup interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

type UserHandler struct {
	profiles ProfileLookup
	convs    service.ConversationService
}

func NewUserHandler(profiles ProfileLookup, convs service.ConversationService) *UserHandler {
	return &UserHandler{profiles: profiles, convs: convs}
}

type PublicUserResponse struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

// GetPublic returns the profile of someone the caller shares a conversation with.
func (h *UserHandler) GetPublic(c echo.Context) error {
	caller, _ := c.Get("uid").(string)
	if caller == "" {
		return c.JSON(http.StatusUnauthorized, NewErrorResponse(CodeUnauthorized, "missing uid"))
	}
	uid := c.Param("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(CodeBadRequest, "invalid uid"))
	}
	ok, err := h.convs.SharesRoom(c.Request().Context(), caller, uid)
	if err != nil {
		return writeError(c, err, "check conversation")
	}
	if !ok {
		return c.JSON(http.StatusNotFound, NewErrorResponse(CodeNotFound, "user not found"))
	}
	user, err := h.profiles.GetUser(c.Request().Context(), uid)
	if err != nil {
		return c.JSON(http.StatusNotFound, NewErrorResponse(CodeNotFound, "user not found"))
	}
	return c.JSON(http.StatusOK, PublicUserResponse{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    strPtrOrNil(user.PhotoURL),
	})
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
