package handler

import (
	"strconv"

	"PPresence/global"
	"PPresence/middleware"
	midsec "PPresence/middleware/security"
	"PPresence/module/friend/model"
	"PPresence/module/friend/service"
	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

type FriendHandler struct {
	svc *service.FriendService
}

func NewFriendHandler(svc *service.FriendService) *FriendHandler {
	return &FriendHandler{svc: svc}
}

func (h *FriendHandler) Register(rt *middleware.Routes) {
	rt.POST("/api/friends/requests", h.HandlerSend, middleware.RouteOpt{IsAuth: true})
	rt.POST("/api/friends/requests/:id/accept", h.HandlerAccept, middleware.RouteOpt{IsAuth: true})
	rt.POST("/api/friends/requests/:id/reject", h.HandlerReject, middleware.RouteOpt{IsAuth: true})
}

func (h *FriendHandler) HandlerSend(c *gin.Context) {
	var req model.SendRequestDto
	if err := c.ShouldBindJSON(&req); err != nil {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	r, err := h.svc.SendRequest(c.Request.Context(), midsec.UserID(c), req.ToUserID, req.Note)
	global.Reply(c, r, err)
}

func (h *FriendHandler) HandlerAccept(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	r, err := h.svc.Accept(c.Request.Context(), midsec.UserID(c), id)
	global.Reply(c, r, err)
}

func (h *FriendHandler) HandlerReject(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}
	r, err := h.svc.Reject(c.Request.Context(), midsec.UserID(c), id)
	global.Reply(c, r, err)
}

func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg("bad request id"))
		return 0, false
	}
	return id, true
}
