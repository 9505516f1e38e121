package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ReactionKind is the vote carried by a reaction.
type ReactionKind uint8

const (
	// ReactionLegacy marks a tag written in the old bare-userId format. It counts as
	// neither a like nor a dislike until migrated.
	ReactionLegacy ReactionKind = iota
	// ReactionLike is a thumbs up.
	ReactionLike
	// ReactionDislike is a thumbs down.
	ReactionDislike
)

const (
	likeSuffix    = "-like"
	dislikeSuffix = "-dislike"
)

// String returns the tag suffix name for k.
func (k ReactionKind) String() string {
	switch k {
	case ReactionLike:
		return "like"
	case ReactionDislike:
		return "dislike"
	default:
		return "legacy"
	}
}

// KindFromIsLike maps the API's isLike flag to a reaction kind.
func KindFromIsLike(isLike bool) ReactionKind {
	if isLike {
		return ReactionLike
	}
	return ReactionDislike
}

// Reaction is one user's vote on a message. On the wire it is the tag string
// "{userId}-like" or "{userId}-dislike".
type Reaction struct {
	UserID string
	Kind   ReactionKind
}

// NewReaction returns a like or dislike reaction for userID.
func NewReaction(userID string, kind ReactionKind) (Reaction, error) {
	if userID == "" {
		return Reaction{}, fmt.Errorf("reaction: empty user id")
	}
	if kind != ReactionLike && kind != ReactionDislike {
		return Reaction{}, fmt.Errorf("reaction: unsupported kind %s", kind)
	}
	return Reaction{UserID: userID, Kind: kind}, nil
}

// ParseReaction decodes a stored tag. Tags without a recognised suffix are legacy
// likes written as a bare user id.
func ParseReaction(tag string) Reaction {
	if u, ok := strings.CutSuffix(tag, dislikeSuffix); ok && u != "" {
		return Reaction{UserID: u, Kind: ReactionDislike}
	}
	if u, ok := strings.CutSuffix(tag, likeSuffix); ok && u != "" {
		return Reaction{UserID: u, Kind: ReactionLike}
	}
	return Reaction{UserID: tag, Kind: ReactionLegacy}
}

// Tag encodes r in its stored string form.
func (r Reaction) Tag() string {
	switch r.Kind {
	case ReactionLike:
		return r.UserID + likeSuffix
	case ReactionDislike:
		return r.UserID + dislikeSuffix
	default:
		return r.UserID
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Reaction) MarshalText() ([]byte, error) {
	return []byte(r.Tag()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reaction) UnmarshalText(b []byte) error {
	*r = ParseReaction(string(b))
	return nil
}

// Reactions is the ordered reaction list of one message.
type Reactions []Reaction

// Has reports whether r is present.
func (rs Reactions) Has(r Reaction) bool {
	return slices.Contains(rs, r)
}

// Toggle removes r when present and appends it otherwise. The opposite kind for the
// same user is left alone. Returns true when r was added.
func (rs *Reactions) Toggle(r Reaction) bool {
	if i := slices.Index(*rs, r); i >= 0 {
		*rs = slices.Delete(*rs, i, i+1)
		return false
	}
	*rs = append(*rs, r)
	return true
}

// Add appends r unless it is already present.
func (rs *Reactions) Add(r Reaction) bool {
	if rs.Has(r) {
		return false
	}
	*rs = append(*rs, r)
	return true
}

// Count returns like and dislike totals. Legacy entries count for neither.
func (rs Reactions) Count() (likes, dislikes int) {
	for _, r := range rs {
		switch r.Kind {
		case ReactionLike:
			likes++
		case ReactionDislike:
			dislikes++
		}
	}
	return likes, dislikes
}

// Compact drops duplicate entries, keeping the first occurrence.
func (rs Reactions) Compact() Reactions {
	if len(rs) < 2 {
		return rs
	}
	seen := make(map[Reaction]struct{}, len(rs))
	out := rs[:0:0]
	for _, r := range rs {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// MigrateLegacy rewrites legacy entries as likes and removes any duplicates this
// creates. Returns the number of legacy entries rewritten.
func (rs Reactions) MigrateLegacy() (Reactions, int) {
	n := 0
	out := make(Reactions, 0, len(rs))
	for _, r := range rs {
		if r.Kind == ReactionLegacy {
			r.Kind = ReactionLike
			n++
		}
		out = append(out, r)
	}
	if n == 0 {
		return rs, 0
	}
	return out.Compact(), n
}

// Tags returns the stored string form of every entry.
func (rs Reactions) Tags() []string {
	tags := make([]string, len(rs))
	for i, r := range rs {
		tags[i] = r.Tag()
	}
	return tags
}

// CountReactions counts raw tags the way Reactions.Count does. Tags that do not
// parse as a like or dislike, including a bare "-like", count for neither.
func CountReactions(tags []string) (likes, dislikes int) {
	rs := make(Reactions, len(tags))
	for i, t := range tags {
		rs[i] = ParseReaction(t)
	}
	return rs.Count()
}

// ReactionCounts is the per-message tally returned to clients.
type ReactionCounts struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}
