package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

// InviteLinkPrefix is prepended to bare invite codes.
const InviteLinkPrefix = "https://chat.whatsapp.com/"

var inviteLinkRe = regexp.MustCompile(`^https?://chat\.whatsapp\.com/`)

// Group settings accepted by SetGroupSetting.
const (
	SettingAnnouncement    = "announcement"
	SettingNotAnnouncement = "not_announcement"
	SettingLocked          = "locked"
	SettingUnlocked        = "unlocked"
)

// Participant actions accepted by UpdateParticipants.
var participantActions = map[string]whatsmeow.ParticipantChange{
	"add":     whatsmeow.ParticipantChangeAdd,
	"remove":  whatsmeow.ParticipantChangeRemove,
	"promote": whatsmeow.ParticipantChangePromote,
	"demote":  whatsmeow.ParticipantChangeDemote,
}

// GroupList is the joined-groups listing.
type GroupList struct {
	Count  int           `json:"count"`
	Groups []store.Group `json:"groups"`
}

// CreatedGroup describes a newly created group.
type CreatedGroup struct {
	GroupID      string              `json:"groupId"`
	Subject      string              `json:"subject"`
	Participants []store.Participant `json:"participants"`
	CreatedAt    int64               `json:"createdAt,omitempty"`
}

// ParticipantResult is the outcome of one participant change.
type ParticipantResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JoinResult describes a group joined by invite.
type JoinResult struct {
	GroupID    string `json:"groupId"`
	InviteCode string `json:"inviteCode"`
}

// InviteInfo is a group's current invite code.
type InviteInfo struct {
	GroupID    string `json:"groupId"`
	InviteCode string `json:"inviteCode"`
	InviteLink string `json:"inviteLink"`
}

// RevokedInvite is the replacement invite after a revoke.
type RevokedInvite struct {
	GroupID       string `json:"groupId"`
	NewInviteCode string `json:"newInviteCode"`
	NewInviteLink string `json:"newInviteLink"`
}

func groupJID(groupID string) (types.JID, error) {
	if strings.TrimSpace(groupID) == "" {
		return types.EmptyJID, invalid("Group ID is required")
	}
	jid, err := wa.FormatJID(groupID, true)
	if err != nil {
		return types.EmptyJID, invalid(fmt.Sprintf("Invalid group ID %q: %v", groupID, err))
	}
	if jid.Server != types.GroupServer {
		return types.EmptyJID, invalid(fmt.Sprintf("Invalid group ID %q", groupID))
	}
	return jid, nil
}

func (c *Controller) groupTarget(groupID string) (wa.Engine, types.JID, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return nil, types.EmptyJID, err
	}
	jid, err := groupJID(groupID)
	if err != nil {
		return nil, types.EmptyJID, err
	}
	return eng, jid, nil
}

func participantJIDs(refs []string) ([]types.JID, error) {
	out := make([]types.JID, 0, len(refs))
	for _, ref := range refs {
		jid, err := wa.FormatJID(ref, false)
		if err != nil {
			return nil, invalid(fmt.Sprintf("Invalid participant %q", ref))
		}
		out = append(out, jid)
	}
	return out, nil
}

// Groups lists joined groups and refreshes the cache from the result.
func (c *Controller) Groups(ctx context.Context) (GroupList, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return GroupList{}, err
	}
	infos, err := eng.JoinedGroups(ctx)
	if err != nil {
		return GroupList{}, fmt.Errorf("fetch joined groups: %w", err)
	}
	groups := make([]store.Group, 0, len(infos))
	for _, info := range infos {
		groups = append(groups, wa.GroupFromInfo(info))
	}
	c.recon.ReconcileGroups(groups)
	return GroupList{Count: len(groups), Groups: groups}, nil
}

// CreateGroup creates a group with the given subject and participants.
func (c *Controller) CreateGroup(ctx context.Context, name string, participants []string) (CreatedGroup, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return CreatedGroup{}, err
	}
	if strings.TrimSpace(name) == "" || len(participants) == 0 {
		return CreatedGroup{}, invalid("Group name and at least one participant are required")
	}
	jids, err := participantJIDs(participants)
	if err != nil {
		return CreatedGroup{}, err
	}
	info, err := eng.CreateGroup(ctx, name, jids)
	if err != nil {
		return CreatedGroup{}, fmt.Errorf("create group: %w", err)
	}
	g := wa.GroupFromInfo(info)
	c.recon.ReconcileGroups([]store.Group{g})
	if g.CreatedAt == 0 {
		g.CreatedAt = time.Now().UnixMilli()
	}
	return CreatedGroup{
		GroupID:      g.ID,
		Subject:      g.Subject,
		Participants: g.Participants,
		CreatedAt:    g.CreatedAt,
	}, nil
}

// UpdateParticipants applies action (add, remove, promote, demote) to the
// given participants of groupID.
func (c *Controller) UpdateParticipants(ctx context.Context, groupID, action string, participants []string) ([]ParticipantResult, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return nil, err
	}
	change, ok := participantActions[action]
	if !ok {
		return nil, invalid("Invalid action. Use: add, remove, promote, demote")
	}
	if strings.TrimSpace(groupID) == "" || len(participants) == 0 {
		return nil, invalid("Group ID and participants are required")
	}
	group, err := groupJID(groupID)
	if err != nil {
		return nil, err
	}
	jids, err := participantJIDs(participants)
	if err != nil {
		return nil, err
	}
	res, err := eng.UpdateParticipants(ctx, group, jids, change)
	if err != nil {
		return nil, fmt.Errorf("%s participants: %w", action, err)
	}
	out := make([]ParticipantResult, 0, len(res))
	for _, p := range res {
		st := "200"
		if p.Error != 0 {
			st = fmt.Sprint(p.Error)
		}
		out = append(out, ParticipantResult{ID: p.JID.ToNonAD().String(), Status: st})
	}
	return out, nil
}

// SetSubject renames a group.
func (c *Controller) SetSubject(ctx context.Context, groupID, subject string) error {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(subject) == "" {
		return invalid("Group subject is required")
	}
	if err := eng.SetGroupName(ctx, jid, subject); err != nil {
		return fmt.Errorf("set subject: %w", err)
	}
	if g, ok := c.store.Group(jid.String()); ok {
		g.Subject = subject
		c.store.UpsertGroup(g)
	}
	return nil
}

// SetDescription changes a group's description. An empty description clears it.
func (c *Controller) SetDescription(ctx context.Context, groupID, description string) error {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return err
	}
	if err := eng.SetGroupTopic(ctx, jid, description); err != nil {
		return fmt.Errorf("set description: %w", err)
	}
	if g, ok := c.store.Group(jid.String()); ok {
		g.Description = description
		c.store.UpsertGroup(g)
	}
	return nil
}

// SetGroupSetting toggles the announce or locked flag.
func (c *Controller) SetGroupSetting(ctx context.Context, groupID, setting string) error {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return err
	}
	switch setting {
	case SettingAnnouncement, SettingNotAnnouncement:
		err = eng.SetGroupAnnounce(ctx, jid, setting == SettingAnnouncement)
	case SettingLocked, SettingUnlocked:
		err = eng.SetGroupLocked(ctx, jid, setting == SettingLocked)
	default:
		return invalid("Invalid setting. Use: announcement, not_announcement, locked, unlocked")
	}
	if err != nil {
		return fmt.Errorf("update group setting: %w", err)
	}
	return nil
}

// SetGroupPicture replaces the group picture with a JPEG image.
func (c *Controller) SetGroupPicture(ctx context.Context, groupID string, img Media) (string, error) {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return "", err
	}
	data, _, err := c.loadMedia(ctx, img, "image/jpeg")
	if err != nil {
		return "", err
	}
	id, err := eng.SetGroupPhoto(ctx, jid, data)
	if err != nil {
		return "", fmt.Errorf("set group picture: %w", err)
	}
	c.store.SetPicture(jid.String(), "")
	return id, nil
}

// LeaveGroup leaves groupID.
func (c *Controller) LeaveGroup(ctx context.Context, groupID string) error {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return err
	}
	if err := eng.LeaveGroup(ctx, jid); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	return nil
}

// InviteCode normalizes a bare invite code or full invite link to the code.
func InviteCode(ref string) string {
	return strings.TrimSpace(inviteLinkRe.ReplaceAllString(strings.TrimSpace(ref), ""))
}

// JoinGroup accepts an invite given as a bare code or a full link.
func (c *Controller) JoinGroup(ctx context.Context, invite string) (JoinResult, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return JoinResult{}, err
	}
	code := InviteCode(invite)
	if code == "" {
		return JoinResult{}, invalid("Invite code is required")
	}
	jid, err := eng.JoinGroupWithLink(ctx, code)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join group: %w", err)
	}
	return JoinResult{GroupID: jid.String(), InviteCode: code}, nil
}

// GroupInvite returns the current invite code of groupID.
func (c *Controller) GroupInvite(ctx context.Context, groupID string) (InviteInfo, error) {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return InviteInfo{}, err
	}
	link, err := eng.GroupInviteLink(ctx, jid, false)
	if err != nil {
		return InviteInfo{}, fmt.Errorf("get invite code: %w", err)
	}
	code := InviteCode(link)
	return InviteInfo{GroupID: jid.String(), InviteCode: code, InviteLink: InviteLinkPrefix + code}, nil
}

// RevokeInvite invalidates the invite code of groupID and returns the new one.
func (c *Controller) RevokeInvite(ctx context.Context, groupID string) (RevokedInvite, error) {
	eng, jid, err := c.groupTarget(groupID)
	if err != nil {
		return RevokedInvite{}, err
	}
	link, err := eng.GroupInviteLink(ctx, jid, true)
	if err != nil {
		return RevokedInvite{}, fmt.Errorf("revoke invite code: %w", err)
	}
	code := InviteCode(link)
	return RevokedInvite{GroupID: jid.String(), NewInviteCode: code, NewInviteLink: InviteLinkPrefix + code}, nil
}
