package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) routes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": len(s.registry.List())})
	})

	authed := r.Group("/")
	if s.cfg.APIKey != "" {
		authed.Use(apiKeyAuth(s.cfg.APIKey))
	}
	authed.GET("/ws", s.stream)
	if s.cfg.MediaDir != "" {
		authed.Static("/media", s.cfg.MediaDir)
	}

	api := authed.Group("/api")
	api.POST("/sessions", s.createSession)
	api.GET("/sessions", s.listSessions)

	sess := api.Group("/sessions/:id")
	sess.GET("", s.sessionStatus)
	sess.DELETE("", s.deleteSession)
	sess.GET("/qr", s.sessionQR)
	sess.GET("/qr.png", s.sessionQRImage)
	sess.POST("/pair", s.pairPhone)
	sess.POST("/logout", s.logout)
	sess.PATCH("/config", s.updateConfig)
	sess.POST("/webhooks", s.addWebhook)
	sess.DELETE("/webhooks", s.removeWebhook)
	sess.GET("/stats", s.stats)
	sess.GET("/deliveries", s.listDeliveries)

	msg := sess.Group("/messages")
	msg.POST("/text", s.sendText)
	msg.POST("/image", s.sendImage)
	msg.POST("/document", s.sendDocument)
	msg.POST("/location", s.sendLocation)
	msg.POST("/contact", s.sendContact)
	msg.POST("/buttons", s.sendButtons)
	msg.POST("/otp", s.sendOTP)
	sess.POST("/presence", s.sendPresence)
	sess.GET("/check/:phone", s.checkNumber)
	sess.GET("/profile-picture/:jid", s.profilePicture)
	sess.POST("/broadcast", s.broadcast)
	sess.POST("/bulk", s.bulk)

	sess.GET("/chats", s.overview)
	sess.GET("/chats/:chat", s.chatInfo)
	sess.GET("/chats/:chat/messages", s.chatMessages)
	sess.POST("/chats/:chat/read", s.markRead)
	sess.GET("/contacts", s.contacts)

	sess.GET("/groups", s.listGroups)
	sess.POST("/groups", s.createGroup)
	sess.POST("/groups/join", s.joinGroup)
	grp := sess.Group("/groups/:group")
	grp.GET("", s.groupMetadata)
	grp.POST("/participants/:action", s.updateParticipants)
	grp.PUT("/subject", s.setSubject)
	grp.PUT("/description", s.setDescription)
	grp.PUT("/settings", s.setGroupSetting)
	grp.PUT("/picture", s.setGroupPicture)
	grp.POST("/leave", s.leaveGroup)
	grp.GET("/invite", s.groupInvite)
	grp.POST("/invite/revoke", s.revokeInvite)
}
