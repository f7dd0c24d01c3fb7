package models

// Subject identifies who is asking: the user, the channel the request came
// from, and the guild that owns the budget and policy scope.
type Subject struct {
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id"`
	UserID    string   `json:"user_id"`
	RoleIDs   []string `json:"role_ids,omitempty"`
	IsOwner   bool     `json:"is_owner,omitempty"`
}

// HasRole reports whether the subject carries any of the given role IDs.
func (s Subject) HasRole(roleIDs []string) bool {
	if len(roleIDs) == 0 || len(s.RoleIDs) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		set[id] = struct{}{}
	}
	for _, id := range s.RoleIDs {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// Decision is the outcome of an admission check. Rejection is an expected,
// frequent result, so it is a value rather than an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow returns an accepting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Reject returns a rejecting decision with a short user-safe reason.
func Reject(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
