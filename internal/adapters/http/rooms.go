package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/app/orch"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/protocol"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const actionLeave = "leave"

type roomsHandler struct {
	orch *orch.Orchestrator
}

type createRoomRequest struct {
	Name string `json:"name"`
}

// fail maps err to a status: validation 400, missing room 404, rest 500.
func fail(c *gin.Context, err error) {
	switch {
	case protocol.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// memberKey is the session key remembering the caller's stable id in a room.
func memberKey(room string) string { return "member:" + room }

func bindRoomRequest(c *gin.Context) (protocol.RoomRequest, error) {
	var req protocol.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, protocol.ErrBadPayload
	}
	req.RoomID = c.Param("roomId")
	return req, nil
}

func (h *roomsHandler) list(c *gin.Context) {
	rooms, err := h.orch.Members.Rooms(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *roomsHandler) create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, protocol.ErrBadPayload)
		return
	}
	room, err := h.orch.Members.CreateRoom(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

func (h *roomsHandler) get(c *gin.Context) {
	id, err := domain.ValidateRoomID(c.Param("roomId"))
	if err != nil {
		fail(c, err)
		return
	}
	view, err := h.orch.Members.View(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse(view, ""))
}

// count serves the roster size without the directory entry, for cheap polling.
func (h *roomsHandler) count(c *gin.Context) {
	id, err := domain.ValidateRoomID(c.Param("roomId"))
	if err != nil {
		fail(c, err)
		return
	}
	n, err := h.orch.Members.Count(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": id, "count": n})
}

func (h *roomsHandler) join(c *gin.Context) {
	req, err := bindRoomRequest(c)
	if err != nil {
		fail(c, err)
		return
	}
	if req.Action == actionLeave {
		h.leaveWith(c, req)
		return
	}

	in, err := req.JoinRoom()
	if err != nil {
		fail(c, err)
		return
	}
	view, err := h.orch.JoinRoom(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(memberKey(string(in.RoomID)), string(in.Participant.StableID))
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("room", string(in.RoomID)).Msg("session save")
	}

	resp := roomResponse(view, "joined")
	token, err := h.orch.Tokens.Issue(in.RoomID, in.Participant)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(in.RoomID)).Msg("issue sfu token")
	} else if token != "" {
		resp["token"] = token
	}
	log.Info().Str("module", "adapters.http").Str("room", string(in.RoomID)).Str("member", string(in.Participant.StableID)).Int("count", view.Count).Msg("joined room")
	c.JSON(http.StatusOK, resp)
}

func (h *roomsHandler) leave(c *gin.Context) {
	req, err := bindRoomRequest(c)
	if err != nil {
		fail(c, err)
		return
	}
	h.leaveWith(c, req)
}

// leaveWith falls back on the identifier remembered at join, so a beacon
// without a body still leaves.
func (h *roomsHandler) leaveWith(c *gin.Context, req protocol.RoomRequest) {
	session := sessions.Default(c)
	key := memberKey(req.RoomID)
	if strings.TrimSpace(req.UserIdentifier) == "" && strings.TrimSpace(req.UserID) == "" {
		if id, ok := session.Get(key).(string); ok {
			req.UserIdentifier = id
		}
	}

	in, err := req.LeaveRoom()
	if err != nil {
		fail(c, err)
		return
	}
	view, err := h.orch.LeaveRoom(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}

	session.Delete(key)
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("room", req.RoomID).Msg("session save")
	}
	log.Info().Str("module", "adapters.http").Str("room", req.RoomID).Int("count", view.Count).Msg("left room")
	c.JSON(http.StatusOK, roomResponse(view, "left"))
}

func roomResponse(view app.RoomView, msg string) gin.H {
	participants := view.Participants
	if participants == nil {
		participants = []domain.StableID{}
	}
	resp := gin.H{"room": view.Room, "participants": participants}
	if msg != "" {
		resp["message"] = msg
	}
	return resp
}
