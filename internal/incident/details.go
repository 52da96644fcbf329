// Package incident holds the typed incident details aggregate and the
// merge rule used everywhere a recurring incident folds into an existing
// one. The dispatch watchdog and the incident upsert endpoint share this
// single routine so the two paths cannot drift apart.
package incident

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxLastMessages bounds the ring of recent messages kept in details.
const MaxLastMessages = 5

// Details is the mutable aggregate stored in an incident's details JSON.
// It accumulates across merges: counts sum, dem id sets union, messages
// keep the most recent few.
type Details struct {
	AgentID           string         `json:"agent_id,omitempty"`
	DominantCause     string         `json:"dominant_cause,omitempty"`
	CauseBreakdown    map[string]int `json:"cause_breakdown,omitempty"`
	SampleSize        int            `json:"sample_size,omitempty"`
	WindowHours       int            `json:"window_hours,omitempty"`
	Count             int            `json:"count,omitempty"`
	RelatedDemIDs     []string       `json:"related_dem_ids,omitempty"`
	LastMessages      []string       `json:"last_messages,omitempty"`
	RecommendedAction string         `json:"recommended_action,omitempty"`
	FirstSeenAt       *time.Time     `json:"first_seen_at,omitempty"`
	LastSeenAt        *time.Time     `json:"last_seen_at,omitempty"`
}

// Merge folds incoming into prev and returns the combined aggregate.
//
// Rules:
//   - cause_breakdown: key-wise sum, missing keys default to 0.
//   - related_dem_ids: set union, incoming appended after prev, first
//     occurrence wins (insertion order is not significant).
//   - last_messages: newest first, incoming before prev, at most
//     MaxLastMessages kept.
//   - count: prev.count (default 1) + 1.
//   - first_seen_at: prev's if present, else incoming's, else now.
//   - last_seen_at: incoming's if present, else now.
//   - remaining scalars: incoming overwrites prev when non-zero.
func Merge(prev, incoming Details, now time.Time) Details {
	out := prev

	if len(incoming.CauseBreakdown) > 0 {
		if out.CauseBreakdown == nil {
			out.CauseBreakdown = make(map[string]int, len(incoming.CauseBreakdown))
		} else {
			// Copy so the caller's prev map is not mutated.
			cp := make(map[string]int, len(out.CauseBreakdown)+len(incoming.CauseBreakdown))
			for k, v := range out.CauseBreakdown {
				cp[k] = v
			}
			out.CauseBreakdown = cp
		}
		for cause, n := range incoming.CauseBreakdown {
			out.CauseBreakdown[cause] += n
		}
	}

	out.RelatedDemIDs = unionStrings(prev.RelatedDemIDs, incoming.RelatedDemIDs)
	out.LastMessages = ringPrepend(incoming.LastMessages, prev.LastMessages, MaxLastMessages)

	prevCount := prev.Count
	if prevCount == 0 {
		prevCount = 1
	}
	out.Count = prevCount + 1

	switch {
	case prev.FirstSeenAt != nil:
		out.FirstSeenAt = prev.FirstSeenAt
	case incoming.FirstSeenAt != nil:
		out.FirstSeenAt = incoming.FirstSeenAt
	default:
		out.FirstSeenAt = &now
	}

	if incoming.LastSeenAt != nil {
		out.LastSeenAt = incoming.LastSeenAt
	} else {
		out.LastSeenAt = &now
	}

	if incoming.AgentID != "" {
		out.AgentID = incoming.AgentID
	}
	if incoming.DominantCause != "" {
		out.DominantCause = incoming.DominantCause
	}
	if incoming.SampleSize != 0 {
		out.SampleSize = incoming.SampleSize
	}
	if incoming.WindowHours != 0 {
		out.WindowHours = incoming.WindowHours
	}
	if incoming.RecommendedAction != "" {
		out.RecommendedAction = incoming.RecommendedAction
	}

	return out
}

// unionStrings appends items from b not already present in a, preserving
// first-occurrence order.
func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ringPrepend returns newest-first messages, prioritizing newer over
// older, truncated to max.
func ringPrepend(newer, older []string, max int) []string {
	if len(newer) == 0 && len(older) == 0 {
		return nil
	}
	out := make([]string, 0, max)
	out = append(out, newer...)
	for _, m := range older {
		if len(out) >= max {
			break
		}
		out = append(out, m)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// Decode parses a details JSON blob. A nil/empty blob decodes to the
// zero Details; a malformed blob is an error so callers fail loudly at
// the boundary instead of merging into garbage.
func Decode(raw []byte) (Details, error) {
	var d Details
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return Details{}, fmt.Errorf("decode incident details: %w", err)
	}
	return d, nil
}

// Encode serializes details to the stored JSON form.
func (d Details) Encode() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode incident details: %w", err)
	}
	return b, nil
}
