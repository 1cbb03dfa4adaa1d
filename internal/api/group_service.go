package api

import (
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/session"
)

func (s *Server) listGroups(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	groups, err := ctrl.Groups(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Groups retrieved", groups)
}

func (s *Server) createGroup(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}
	if !bind(c, &req) {
		return
	}
	created, err := ctrl.CreateGroup(c.Request.Context(), req.Name, req.Participants)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Group created successfully", created)
}

func (s *Server) groupMetadata(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	g, err := ctrl.GroupMetadata(c.Request.Context(), c.Param("group"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Group metadata retrieved", g)
}

func (s *Server) updateParticipants(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		Participants []string `json:"participants"`
	}
	if !bind(c, &req) {
		return
	}
	action := c.Param("action")
	res, err := ctrl.UpdateParticipants(c.Request.Context(), c.Param("group"), action, req.Participants)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Participants updated: "+action, res)
}

func (s *Server) setSubject(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		Subject string `json:"subject"`
	}
	if !bind(c, &req) {
		return
	}
	if err := ctrl.SetSubject(c.Request.Context(), c.Param("group"), req.Subject); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Group subject updated", gin.H{"groupId": c.Param("group"), "subject": req.Subject})
}

func (s *Server) setDescription(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if !bind(c, &req) {
		return
	}
	if err := ctrl.SetDescription(c.Request.Context(), c.Param("group"), req.Description); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Group description updated", gin.H{"groupId": c.Param("group"), "description": req.Description})
}

func (s *Server) setGroupSetting(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		Setting string `json:"setting"`
	}
	if !bind(c, &req) {
		return
	}
	if err := ctrl.SetGroupSetting(c.Request.Context(), c.Param("group"), req.Setting); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Group settings updated", gin.H{"groupId": c.Param("group"), "setting": req.Setting})
}

func (s *Server) setGroupPicture(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		ImageURL  string `json:"imageUrl"`
		ImageData []byte `json:"imageData"`
	}
	if !bind(c, &req) {
		return
	}
	if req.ImageURL == "" && len(req.ImageData) == 0 {
		badRequest(c, "Missing required fields: imageUrl")
		return
	}
	id, err := ctrl.SetGroupPicture(c.Request.Context(), c.Param("group"), session.Media{URL: req.ImageURL, Data: req.ImageData})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Group picture updated", gin.H{"groupId": c.Param("group"), "pictureId": id})
}

func (s *Server) leaveGroup(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	if err := ctrl.LeaveGroup(c.Request.Context(), c.Param("group")); err != nil {
		fail(c, err)
		return
	}
	ok(c, "Left group successfully", gin.H{"groupId": c.Param("group")})
}

func (s *Server) joinGroup(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	var req struct {
		InviteCode string `json:"inviteCode"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := ctrl.JoinGroup(c.Request.Context(), req.InviteCode)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Joined group successfully", res)
}

func (s *Server) groupInvite(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	inv, err := ctrl.GroupInvite(c.Request.Context(), c.Param("group"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Invite code retrieved", inv)
}

func (s *Server) revokeInvite(c *gin.Context) {
	ctrl, found := s.controller(c)
	if !found {
		return
	}
	rev, err := ctrl.RevokeInvite(c.Request.Context(), c.Param("group"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Invite code revoked", rev)
}
