// Package mention resolves inline @-mentions and explicit mention lists into
// protocol identifiers for outbound messages.
package mention

import (
	"context"
	"regexp"
	"strings"

	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

var inlineRe = regexp.MustCompile(`@(\d{10,15})`)

// GroupSource returns group metadata, from cache or the network.
type GroupSource interface {
	GroupMetadata(ctx context.Context, groupID string) (store.Group, error)
}

// Resolver maps mention candidates to participant identifiers.
type Resolver struct {
	groups GroupSource
	logger *zap.Logger
}

// NewResolver creates a Resolver. groups may be nil, in which case every
// candidate uses the formatted fallback.
func NewResolver(groups GroupSource, logger *zap.Logger) *Resolver {
	return &Resolver{groups: groups, logger: logger}
}

// Inline returns the digit runs of @-tokens in text, in order of appearance.
func Inline(text string) []string {
	matches := inlineRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// Candidates merges inline tokens and explicit numbers, inline first, keeping
// the first occurrence of each number.
func Candidates(text string, explicit []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		n = wa.Digits(n)
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
	}
	for _, n := range Inline(text) {
		add(n)
	}
	for _, n := range explicit {
		add(n)
	}
	return out
}

// Resolve returns the identifiers to mention when sending text to chatID.
// Lookups that fail degrade to the formatted individual JID, with a leading
// trunk 0 replaced by the default country code.
func (r *Resolver) Resolve(ctx context.Context, chatID, text string, explicit []string) []string {
	cands := Candidates(text, explicit)
	if len(cands) == 0 {
		return nil
	}

	var index map[string]string
	if wa.IsGroupID(chatID) && r.groups != nil {
		g, err := r.groups.GroupMetadata(ctx, chatID)
		if err != nil {
			r.logger.Warn("group metadata unavailable for mentions", zap.String("group", chatID), zap.Error(err))
		} else {
			index = participantIndex(g)
		}
	}

	out := make([]string, 0, len(cands))
	seen := make(map[string]bool, len(cands))
	for _, n := range cands {
		id, ok := index[n]
		if !ok {
			id, ok = index[wa.FormatPhone(n)]
		}
		if !ok {
			id = wa.UserJID(n)
			if index != nil {
				r.logger.Debug("mention not in group, using formatted id", zap.String("group", chatID), zap.String("number", n))
			}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// participantIndex maps bare numbers, and the same numbers without the
// default country code, to participant ids.
func participantIndex(g store.Group) map[string]string {
	index := make(map[string]string, len(g.Participants)*2)
	for _, p := range g.Participants {
		phone := p.PhoneNumber
		if phone == "" {
			phone = p.ID
		}
		num, _, _ := strings.Cut(phone, "@")
		num = wa.Digits(num)
		if num == "" {
			continue
		}
		index[num] = p.ID
		if short, ok := strings.CutPrefix(num, wa.DefaultCountryCode); ok && len(short) >= 9 {
			if _, taken := index[short]; !taken {
				index[short] = p.ID
			}
		}
	}
	return index
}
