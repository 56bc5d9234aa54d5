package canvas

import (
	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// reconcile merges an authoritative snapshot into the displayed notes.
//
// Position of a note under drag and text of a focused note stay local; all
// other state is overwritten by the store. Notes missing from the snapshot
// are torn down, ending any gesture or edit that targeted them.
func (c *Controller) reconcile(s notes.Snapshot) {
	for _, ch := range s.Changes {
		if ch.Type == notes.ChangeRemoved {
			c.dropNote(ch.Note.ID)
		}
	}

	present := make(map[string]struct{}, len(s.Notes))
	for _, n := range s.Notes {
		present[n.ID] = struct{}{}
		c.canonical[n.ID] = n
		remote := viewport.ClampNote(n.Position())

		v, ok := c.views[n.ID]
		if !ok {
			c.views[n.ID] = &noteView{display: remote, text: n.Text}
			continue
		}
		if !c.gesture.Dragging(n.ID) {
			v.display = remote
		}
		if c.editing == n.ID {
			if n.Text == v.text {
				v.pending = nil
			} else {
				text := n.Text
				v.pending = &text
			}
			continue
		}
		v.text = n.Text
		v.pending = nil
	}
	for id := range c.views {
		if _, ok := present[id]; !ok {
			c.dropNote(id)
		}
	}

	c.idx.Rebuild(c.canonicalNotes())
	c.follow()
	c.loaded = true
}

// dropNote removes a note from the canvas. A drag on it ends without a
// write; an edit on it is abandoned.
func (c *Controller) dropNote(id string) {
	if _, ok := c.views[id]; !ok {
		delete(c.canonical, id)
		return
	}
	if c.gesture.Dragging(id) {
		c.log.Info("drag target removed remotely", "note_id", id)
		c.endGesture()
	}
	if c.editing == id {
		c.log.Info("edited note removed remotely", "note_id", id)
		c.editing = ""
	}
	if c.lastInteracted == id {
		c.lastInteracted = ""
	}
	delete(c.views, id)
	delete(c.canonical, id)
}

// follow recenters on the newest note when FollowRemote is set and the
// newest note changed because of someone else.
func (c *Controller) follow() {
	newest, ok := c.idx.Newest()
	if !ok {
		c.newest = ""
		return
	}
	prev := c.newest
	c.newest = newest.ID
	if !c.opts.FollowRemote || !c.loaded || newest.ID == prev {
		return
	}
	if newest.ID == c.lastInteracted || c.gesture.Kind != Idle {
		return
	}
	c.vp.CenterOn(newest.Center(), c.container)
}

func (c *Controller) canonicalNotes() []notes.Note {
	out := make([]notes.Note, 0, len(c.canonical))
	for _, n := range c.canonical {
		out = append(out, n)
	}
	return out
}

func (c *Controller) writeCompleted(e WriteCompleted) bool {
	if e.Err == nil {
		if c.lastErr == nil {
			return false
		}
		c.lastErr = nil
		return true
	}
	c.log.Warn("store write failed",
		"op", string(e.Op),
		"note_id", e.NoteID,
		"code", string(errs.CodeOf(e.Err)),
		"error", e.Err,
	)
	c.noteWriteError(e.Err)
	return true
}

func (c *Controller) noteWriteError(err error) {
	c.lastErr = err
	if errs.IsAuth(err) {
		c.authRequired = true
	}
}
