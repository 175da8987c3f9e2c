package worker

import "strconv"

// currentRemove removes it together with everything below it. Drawables
// leave the pipes too; nothing is rendered.
func (w *Worker) currentRemove(it treeItem) {
	now := it
	for {
		container := now.node().parent()
		var pos treeItem

		switch v := now.(type) {
		case *Drawable:
			pos = v.prev
			w.removeDrawable(v)
		case *Container:
			if v.items.head != nil {
				now = v.items.head
				continue
			}
			pos = v.prev
			w.freeContainer(v)
		case *Shadow:
			fatal(ErrCodeTreeCorrupt, "shadow removed apart from its drawable")
		}
		if now == it {
			return
		}
		if next := container.items.after(pos); next != nil {
			now = next
		} else {
			now = container
		}
	}
}

// removeDrawable drops d from the pipes and from the tree.
func (w *Worker) removeDrawable(d *Drawable) {
	w.pipesRemove(d)
	w.currentRemoveDrawable(d)
}

// currentRemoveDrawable unlinks d from its tree and lists and drops the
// tree reference. d stays alive while pipe items still hold it.
func (w *Worker) currentRemoveDrawable(d *Drawable) {
	traced := d.streamable && d.stream == nil
	if d.stream != nil {
		w.detachStream(d.stream)
	}
	w.removeShadow(d)
	if c := d.parent(); c != nil {
		w.pendingCleanup = append(w.pendingCleanup, c)
	}
	d.ring.remove(d)
	w.current.Remove(d.currentElem)
	d.surface.current.Remove(d.surfaceElem)
	d.currentElem, d.surfaceElem = nil, nil
	for i := 0; i < d.ndeps; i++ {
		if e := d.deps[i].elem; e != nil {
			d.deps[i].surface.dependants.Remove(e)
			d.deps[i].elem = nil
		}
	}
	if traced {
		w.addItemTrace(d)
	}
	w.releaseDrawable(d)
}

func (w *Worker) removeShadow(d *Drawable) {
	s := d.shadow
	if s == nil {
		return
	}
	d.shadow = nil
	s.owner = nil
	s.ring.remove(s)
	w.stats.Shadows--
}

func (w *Worker) freeContainer(c *Container) {
	if p := c.parent(); p != nil {
		w.pendingCleanup = append(w.pendingCleanup, p)
	}
	c.ring.remove(c)
	w.stats.Containers--
}

// cleanupContainers dissolves every container left with fewer than two
// children, hoisting a sole child into the container's place.
func (w *Worker) cleanupContainers() {
	for len(w.pendingCleanup) > 0 {
		n := len(w.pendingCleanup) - 1
		c := w.pendingCleanup[n]
		w.pendingCleanup[n] = nil
		w.pendingCleanup = w.pendingCleanup[:n]

		for c != nil && c.ring != nil && c.items.n < 2 {
			next := c.parent()
			r := c.ring
			if child := c.items.head; child != nil {
				c.items.remove(child)
				r.insertAfter(c, child)
				if d, ok := child.(*Drawable); ok {
					d.containerRoot = false
				}
			}
			r.remove(c)
			w.stats.Containers--
			c = next
		}
	}
}

// releaseDrawable drops one reference. The last one frees the pool slot,
// the surface references and the command resource.
func (w *Worker) releaseDrawable(d *Drawable) {
	if d.refs <= 0 {
		fatalWith(ErrCodeDoubleRelease, map[string]string{"index": strconv.Itoa(int(d.id.Index))},
			"drawable released with no references left")
	}
	d.refs--
	if d.refs > 0 {
		return
	}
	if d.inTree() || d.stream != nil {
		fatal(ErrCodeTreeCorrupt, "drawable freed while still linked")
	}
	for i := 0; i < d.ndeps; i++ {
		if s := d.deps[i].surface; s != nil {
			d.deps[i].surface = nil
			w.surfaceUnref(s)
		}
	}
	if d.targetRef {
		d.targetRef = false
		w.surfaceUnref(d.surface)
	}
	if d.cmd != nil {
		w.releaseCommand(d.cmd)
	}
	w.pool.release(d)
}

// retainCommand adds a holder to a command resource.
func (w *Worker) retainCommand(c *commandRef) {
	c.refs++
}

func (w *Worker) releaseCommand(c *commandRef) {
	if c.refs <= 0 {
		fatal(ErrCodeDoubleRelease, "command resource %d released twice", c.handle)
	}
	c.refs--
	if c.refs == 0 {
		w.source.Release(c.handle)
	}
}
