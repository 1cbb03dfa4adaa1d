package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/store"
)

// page reads limit and offset query parameters. Zero values fall back to the
// listing's defaults.
func page(c *gin.Context) store.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return store.Page{Limit: limit, Offset: offset}
}

func (s *Server) overview(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	filter := store.ChatFilter(c.DefaultQuery("type", string(store.FilterAll)))
	switch filter {
	case store.FilterAll, store.FilterGroup, store.FilterPersonal:
	default:
		badRequest(c, "Invalid type. Use: all, group, personal")
		return
	}
	ok(c, "Chats retrieved", ctrl.Overview(c.Request.Context(), filter, page(c)))
}

func (s *Server) contacts(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	ok(c, "Contacts retrieved", ctrl.Contacts(c.Request.Context(), c.Query("search"), page(c)))
}

func (s *Server) chatMessages(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := ctrl.Messages(c.Param("chat"), c.Query("cursor"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Messages retrieved", res)
}

func (s *Server) chatInfo(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	info, err := ctrl.ChatInfo(c.Request.Context(), c.Param("chat"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Chat info retrieved", info)
}

func (s *Server) markRead(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		MessageID string `json:"messageId"`
	}
	// The body is optional: without a message id the newest inbound one is used.
	_ = c.ShouldBindJSON(&req)
	if err := ctrl.MarkChatRead(c.Request.Context(), c.Param("chat"), req.MessageID); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Chat marked as read", gin.H{"chatId": c.Param("chat")})
}
