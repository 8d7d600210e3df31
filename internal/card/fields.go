package card

import "fmt"

// Field is one labeled display value shared by all pass formats.
type Field struct {
	Key   string
	Label string
	Value string
}

// FieldSet is the semantic field set a card exposes, derived once from
// UnifiedCardData. Each platform encoder is a thin renderer over this set,
// which keeps the three pass formats from drifting apart.
type FieldSet struct {
	Primary   []Field
	Secondary []Field
	Auxiliary []Field
	Benefits  []string
}

// Well-known field keys. Encoders key off these, not off positions.
const (
	FieldStamps     = "stamps"
	FieldReward     = "reward"
	FieldProgress   = "progress"
	FieldMembership = "membership"
	FieldSessions   = "sessions"
	FieldExpiry     = "expiry"
)

const expiryLayout = "Jan 2, 2006"

// Fields derives the semantic field set for a card. The switch is one of
// the two places in the codebase that branch on Kind; keep it exhaustive.
func Fields(c *UnifiedCardData) FieldSet {
	switch c.Kind {
	case KindStamp:
		if c.Stamp == nil {
			return FieldSet{}
		}
		return FieldSet{
			Primary: []Field{{
				Key:   FieldStamps,
				Label: "Stamps",
				Value: fmt.Sprintf("%d of %d", c.Stamp.CurrentStamps, c.Stamp.TotalStamps),
			}},
			Secondary: []Field{{
				Key:   FieldReward,
				Label: "Reward",
				Value: c.Stamp.RewardDescription,
			}},
			Auxiliary: []Field{{
				Key:   FieldProgress,
				Label: "Progress",
				Value: fmt.Sprintf("%d%%", int(c.Stamp.Progress*100)),
			}},
		}
	case KindMembership:
		if c.Membership == nil {
			return FieldSet{}
		}
		m := c.Membership
		return FieldSet{
			Primary: []Field{{
				Key:   FieldMembership,
				Label: "Membership",
				Value: m.MembershipType,
			}},
			Secondary: []Field{
				{
					Key:   FieldSessions,
					Label: "Sessions",
					Value: fmt.Sprintf("%d/%d used", m.SessionsUsed, m.TotalSessions),
				},
				{
					Key:   FieldExpiry,
					Label: "Expires",
					Value: m.ExpiryDate.Format(expiryLayout),
				},
			},
			Benefits: append([]string(nil), m.Benefits...),
		}
	default:
		return FieldSet{}
	}
}

// Lookup returns the field with the given key from any tier, or false.
func (fs FieldSet) Lookup(key string) (Field, bool) {
	for _, tier := range [][]Field{fs.Primary, fs.Secondary, fs.Auxiliary} {
		for _, f := range tier {
			if f.Key == key {
				return f, true
			}
		}
	}
	return Field{}, false
}
