package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/delivery"
	"github.com/matheus3301/wppbridge/internal/session"
)

// sendFields are accepted by every single-message endpoint. Durations are in
// milliseconds.
type sendFields struct {
	ChatID      string   `json:"chatId"`
	TypingTime  int      `json:"typingTime"`
	FooterName  string   `json:"footerName"`
	NoFooter    bool     `json:"noFooter"`
	CheckNumber bool     `json:"checkNumber"`
	Mentions    []string `json:"mentions"`
}

func (f sendFields) options() session.SendOptions {
	return session.SendOptions{
		TypingTime:  time.Duration(f.TypingTime) * time.Millisecond,
		Footer:      f.FooterName,
		NoFooter:    f.NoFooter,
		Mentions:    f.Mentions,
		CheckNumber: f.CheckNumber,
	}
}

// sent writes the outcome of a send.
func sent(c *gin.Context, res session.SendResult, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Message sent successfully", res)
}

func (s *Server) sendText(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		Message string `json:"message"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || req.Message == "" {
		badRequest(c, "Missing required fields: chatId, message")
		return
	}
	res, err := ctrl.SendText(c.Request.Context(), req.ChatID, req.Message, req.options())
	sent(c, res, err)
}

func (s *Server) sendImage(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		ImageURL  string `json:"imageUrl"`
		ImageData []byte `json:"imageData"`
		MimeType  string `json:"mimetype"`
		Caption   string `json:"caption"`
		ViewOnce  bool   `json:"viewOnce"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || (req.ImageURL == "" && len(req.ImageData) == 0) {
		badRequest(c, "Missing required fields: chatId, imageUrl")
		return
	}
	img := session.Media{URL: req.ImageURL, Data: req.ImageData, MimeType: req.MimeType, Caption: req.Caption, ViewOnce: req.ViewOnce}
	res, err := ctrl.SendImage(c.Request.Context(), req.ChatID, img, req.options())
	sent(c, res, err)
}

func (s *Server) sendDocument(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		DocumentURL  string `json:"documentUrl"`
		DocumentData []byte `json:"documentData"`
		Filename     string `json:"filename"`
		MimeType     string `json:"mimetype"`
		Caption      string `json:"caption"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || (req.DocumentURL == "" && len(req.DocumentData) == 0) || req.Filename == "" {
		badRequest(c, "Missing required fields: chatId, documentUrl, filename")
		return
	}
	doc := session.Media{URL: req.DocumentURL, Data: req.DocumentData, FileName: req.Filename, MimeType: req.MimeType, Caption: req.Caption}
	res, err := ctrl.SendDocument(c.Request.Context(), req.ChatID, doc, req.options())
	sent(c, res, err)
}

func (s *Server) sendLocation(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Name      string   `json:"name"`
		Address   string   `json:"address"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || req.Latitude == nil || req.Longitude == nil {
		badRequest(c, "Missing required fields: chatId, latitude, longitude")
		return
	}
	loc := session.Location{Latitude: *req.Latitude, Longitude: *req.Longitude, Name: req.Name, Address: req.Address}
	res, err := ctrl.SendLocation(c.Request.Context(), req.ChatID, loc, req.options())
	sent(c, res, err)
}

func (s *Server) sendContact(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		ContactName  string `json:"contactName"`
		ContactPhone string `json:"contactPhone"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || req.ContactName == "" || req.ContactPhone == "" {
		badRequest(c, "Missing required fields: chatId, contactName, contactPhone")
		return
	}
	card := session.ContactCard{Name: req.ContactName, Phone: req.ContactPhone}
	res, err := ctrl.SendContact(c.Request.Context(), req.ChatID, card, req.options())
	sent(c, res, err)
}

func (s *Server) sendButtons(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		Text    string   `json:"text"`
		Footer  string   `json:"footer"`
		Buttons []string `json:"buttons"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || req.Text == "" || req.Buttons == nil {
		badRequest(c, "Missing required fields: chatId, text, buttons (array)")
		return
	}
	b := session.Buttons{Text: req.Text, Footer: req.Footer, Buttons: req.Buttons}
	res, err := ctrl.SendButtons(c.Request.Context(), req.ChatID, b, req.options())
	sent(c, res, err)
}

func (s *Server) sendOTP(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		sendFields
		OTPCode       string `json:"otpCode"`
		Message       string `json:"message"`
		ExpiryMinutes int    `json:"expiryMinutes"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ChatID == "" || req.OTPCode == "" {
		badRequest(c, "Missing required fields: chatId, otpCode")
		return
	}
	otp := session.OTPRequest{Code: req.OTPCode, Template: req.Message, ExpiryMinutes: req.ExpiryMinutes}
	res, err := ctrl.SendOTP(c.Request.Context(), req.ChatID, otp, req.options())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "OTP sent successfully", res)
}

func (s *Server) sendPresence(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		ChatID   string `json:"chatId"`
		Presence string `json:"presence"`
	}
	if !bind(c, &req) {
		return
	}
	if req.Presence == "" {
		req.Presence = session.PresenceComposing
	}
	if err := ctrl.SendPresence(c.Request.Context(), req.Presence, req.ChatID); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Presence updated", gin.H{"chatId": req.ChatID, "presence": req.Presence})
}

func (s *Server) checkNumber(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	reg, err := ctrl.IsRegistered(c.Request.Context(), c.Param("phone"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Number checked", reg)
}

func (s *Server) profilePicture(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	url, err := ctrl.ProfilePicture(c.Request.Context(), c.Param("jid"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Profile picture retrieved", gin.H{"jid": c.Param("jid"), "profilePictureUrl": url})
}

// pacing is the shared bulk timing block. Durations are in milliseconds; a
// negative batch delay disables the pause between batches.
type pacing struct {
	TypingTime  int    `json:"typingTime"`
	MinDelay    int    `json:"minDelay"`
	MaxDelay    int    `json:"maxDelay"`
	BatchSize   int    `json:"batchSize"`
	BatchDelay  int    `json:"batchDelay"`
	CheckNumber bool   `json:"checkNumber"`
	FooterName  string `json:"footerName"`
}

func (p pacing) options() session.BulkOptions {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return session.BulkOptions{
		Options: delivery.Options{
			MinDelay:    ms(p.MinDelay),
			MaxDelay:    ms(p.MaxDelay),
			BatchSize:   p.BatchSize,
			BatchDelay:  ms(p.BatchDelay),
			CheckNumber: p.CheckNumber,
		},
		TypingTime: ms(p.TypingTime),
		Footer:     p.FooterName,
	}
}

func summarize(c *gin.Context, sum delivery.Summary, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	msg := fmt.Sprintf("Broadcast completed: %d sent, %d failed", sum.Success, sum.Failed)
	if sum.Cancelled {
		msg = fmt.Sprintf("Broadcast cancelled: %d sent, %d failed", sum.Success, sum.Failed)
	}
	ok(c, msg, sum)
}

func (s *Server) broadcast(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		pacing
		Recipients []string       `json:"recipients"`
		Message    string         `json:"message"`
		Image      *session.Media `json:"image"`
		Document   *session.Media `json:"document"`
	}
	if !bind(c, &req) {
		return
	}
	item := session.BulkItem{Text: req.Message, Image: req.Image, Document: req.Document}
	sum, err := ctrl.Broadcast(c.Request.Context(), req.Recipients, item, req.options())
	summarize(c, sum, err)
}

func (s *Server) bulk(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		pacing
		Messages []session.BulkItem `json:"messages"`
	}
	if !bind(c, &req) {
		return
	}
	sum, err := ctrl.Bulk(c.Request.Context(), req.Messages, req.options())
	summarize(c, sum, err)
}
