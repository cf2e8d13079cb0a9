package document

import (
	"encoding/json"

	"github.com/collabora-online/kitworker/internal/session"
)

// viewInfoEntry is one element of the viewinfo: broadcast array.
type viewInfoEntry struct {
	ID       int    `json:"id"`
	UserName string `json:"username"`
	Color    int    `json:"color"`
}

type trackedChangeAuthors struct {
	Authors []struct {
		Name  string `json:"name"`
		Color int    `json:"color"`
	} `json:"authors"`
}

// broadcastViewInfo builds the view-info array over viewIDs, joined with
// known usernames and a color table from .uno:TrackedChangeAuthors, and
// sends it to every active session, per spec.md §4.5.
func (d *Document) broadcastViewInfo(viewIDs []int) {
	colors := d.viewColors()

	d.mu.Lock()
	entries := make([]viewInfoEntry, 0, len(viewIDs))
	for _, id := range viewIDs {
		name, ok := d.viewUserNames[id]
		if !ok || name == "" {
			name = "Unknown"
		}
		entries = append(entries, viewInfoEntry{ID: id, UserName: name, Color: colors[name]})
	}
	d.mu.Unlock()

	payload, err := json.Marshal(entries)
	if err != nil {
		d.logger.Error("document: marshal viewinfo failed", "error", err)
		return
	}
	msg := "viewinfo: " + string(payload)

	d.sessions.Each(func(s session.ChildSession) {
		if !s.IsActive() {
			return
		}
		if err := s.SendTextFrame(msg); err != nil {
			d.logger.Warn("document: send viewinfo failed", "session", s.ID(), "error", err)
		}
	})
}

// viewColors parses .uno:TrackedChangeAuthors into a name -> color map.
// Missing or unparseable results yield an empty map, so callers default to
// color 0 for every author, matching spec.md's "color defaults to 0".
func (d *Document) viewColors() map[string]int {
	d.engineMu.Lock()
	raw, err := d.loKitDocument.GetCommandValues(".uno:TrackedChangeAuthors")
	d.engineMu.Unlock()
	if err != nil {
		return nil
	}

	var parsed trackedChangeAuthors
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	colors := make(map[string]int, len(parsed.Authors))
	for _, a := range parsed.Authors {
		colors[a.Name] = a.Color
	}
	return colors
}
