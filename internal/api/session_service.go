package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/ledger"
	"github.com/matheus3301/wppbridge/internal/registry"
	"github.com/matheus3301/wppbridge/internal/session"
)

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
	session.Patch
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Request body is required")
		return
	}
	if req.SessionID == "" {
		badRequest(c, "Session ID is required")
		return
	}
	res, err := s.registry.Create(c.Request.Context(), req.SessionID, req.Patch)
	if errors.Is(err, registry.ErrAlreadyConnected) {
		c.JSON(http.StatusConflict, Response{Message: res.Message, Data: res.Info})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res.Message, res.Info)
}

func (s *Server) listSessions(c *gin.Context) {
	ok(c, "Sessions retrieved", s.registry.List())
}

func (s *Server) sessionStatus(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	ok(c, "Status retrieved", ctrl.Info())
}

func (s *Server) deleteSession(c *gin.Context) {
	msg, err := s.registry.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, msg, nil)
}

func (s *Server) logout(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	if err := ctrl.Logout(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Logged out", nil)
}

func (s *Server) sessionQR(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	info := ctrl.Info()
	if info.IsConnected {
		badRequest(c, "Already connected to WhatsApp")
		return
	}
	if info.QR == "" {
		c.JSON(http.StatusNotFound, Response{Message: "QR Code not available yet. Please wait..."})
		return
	}
	ok(c, "QR Code ready", gin.H{"qr": info.QR, "qrCode": info.QRCode, "status": info.Status})
}

func (s *Server) sessionQRImage(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	png, err := ctrl.QRPNG(size)
	if err != nil {
		c.JSON(http.StatusNotFound, Response{Message: err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) pairPhone(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := ctrl.PairPhone(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Pair Code ready", res)
}

func (s *Server) updateConfig(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var patch session.Patch
	if !bind(c, &patch) {
		return
	}
	settings, err := ctrl.UpdateSettings(patch)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Session config updated", settings)
}

type webhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (s *Server) addWebhook(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req webhookRequest
	if !bind(c, &req) {
		return
	}
	settings, err := ctrl.AddWebhook(req.URL, req.Events)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Webhook added", settings.Webhooks)
}

func (s *Server) removeWebhook(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req webhookRequest
	if !bind(c, &req) {
		return
	}
	settings, err := ctrl.RemoveWebhook(req.URL)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Webhook removed", settings.Webhooks)
}

func (s *Server) stats(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	ok(c, "Stats retrieved", ctrl.Stats())
}

func (s *Server) listDeliveries(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	entries := []ledger.Entry{}
	if s.deliveries != nil {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		var err error
		if entries, err = s.deliveries.List(c.Request.Context(), ctrl.ID(), limit); err != nil {
			fail(c, err)
			return
		}
		if entries == nil {
			entries = []ledger.Entry{}
		}
	}
	ok(c, "Deliveries retrieved", entries)
}
