package handler

import (
	"context"
	"strconv"

	"PPresence/global"
	"PPresence/middleware"
	midsec "PPresence/middleware/security"
	"PPresence/module/message/model"
	"PPresence/module/message/service"
	"PPresence/service/chat"
	"PPresence/tools/decode"
	"PPresence/tools/errs"

	"github.com/gin-gonic/gin"
)

const (
	FrameSendMessage = "SEND_MESSAGE"
	FrameMarkRead    = "MARK_READ"
)

type MessageHandler struct {
	svc *service.MessageService
}

func NewMessageHandler(svc *service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

func (h *MessageHandler) Register(rt *middleware.Routes) {
	rt.POST("/api/messages", h.HandlerSend, middleware.RouteOpt{IsAuth: true})
	rt.GET("/api/messages/conversations", h.HandlerConversations, middleware.RouteOpt{IsAuth: true})
	rt.GET("/api/messages/:peerId", h.HandlerConversation, middleware.RouteOpt{IsAuth: true})
	rt.GET("/api/messages/:peerId/unread", h.HandlerUnread, middleware.RouteOpt{IsAuth: true})
	rt.POST("/api/messages/:peerId/read", h.HandlerMarkRead, middleware.RouteOpt{IsAuth: true})
	rt.GET("/api/presence/:userId", h.HandlerPresence, middleware.RouteOpt{IsAuth: true})
}

// RegisterFrames 聊天通道的上行帧
func (h *MessageHandler) RegisterFrames(r *chat.FrameRouter) {
	r.Register(FrameSendMessage, h.FrameSend)
	r.Register(FrameMarkRead, h.FrameMarkRead)
}

func (h *MessageHandler) HandlerSend(c *gin.Context) {
	var req model.SendMessageDto
	if err := c.ShouldBindJSON(&req); err != nil {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	dto, err := h.svc.SendMessage(c.Request.Context(), midsec.UserID(c), &req)
	global.Reply(c, dto, err)
}

func (h *MessageHandler) HandlerConversation(c *gin.Context) {
	peerID, err := strconv.ParseInt(c.Param("peerId"), 10, 64)
	if err != nil {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg("bad peerId"))
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultPageSize)))
	list, err := h.svc.Conversation(c.Request.Context(), midsec.UserID(c), peerID, limit)
	if err != nil {
		global.Reply(c, nil, err)
		return
	}
	global.Reply(c, gin.H{
		"messages":   list,
		"peerOnline": h.svc.Online(c.Request.Context(), peerID),
	}, nil)
}

func (h *MessageHandler) HandlerMarkRead(c *gin.Context) {
	peerID, err := strconv.ParseInt(c.Param("peerId"), 10, 64)
	if err != nil {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg("bad peerId"))
		return
	}
	n, err := h.svc.MarkRead(c.Request.Context(), midsec.UserID(c), peerID)
	global.Reply(c, gin.H{"updated": n}, err)
}

func (h *MessageHandler) HandlerPresence(c *gin.Context) {
	uid, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || uid <= 0 {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg("bad userId"))
		return
	}
	global.Reply(c, gin.H{"userId": uid, "isOnline": h.svc.Online(c.Request.Context(), uid)}, nil)
}

func (h *MessageHandler) HandlerConversations(c *gin.Context) {
	list, err := h.svc.Conversations(c.Request.Context(), midsec.UserID(c))
	global.Reply(c, list, err)
}

func (h *MessageHandler) HandlerUnread(c *gin.Context) {
	peerID, err := strconv.ParseInt(c.Param("peerId"), 10, 64)
	if err != nil {
		global.Reply(c, nil, errs.ErrArgs.WrapMsg("bad peerId"))
		return
	}
	n, err := h.svc.UnreadCount(c.Request.Context(), midsec.UserID(c), peerID)
	global.Reply(c, gin.H{"peerId": peerID, "unreadCount": n}, err)
}

// FrameSend SEND_MESSAGE 帧，与 POST /api/messages 走同一条路径
func (h *MessageHandler) FrameSend(ctx context.Context, c *chat.WsConn, data map[string]any) error {
	req, err := decode.DecodeMap[model.SendMessageDto](data)
	if err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	_, err = h.svc.SendMessage(ctx, c.UserID(), req)
	return err
}

// FrameMarkRead MARK_READ 帧：{"senderId": N}
func (h *MessageHandler) FrameMarkRead(ctx context.Context, c *chat.WsConn, data map[string]any) error {
	senderID, err := decode.ReadInt64(data, "senderId")
	if err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	_, err = h.svc.MarkRead(ctx, c.UserID(), senderID)
	return err
}
