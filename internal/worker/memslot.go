package worker

import (
	"log/slog"
	"strconv"

	"github.com/roach88/redworker/internal/ir"
)

// MemSlot is a guest memory range commands may live in.
type MemSlot struct {
	Group uint32
	Slot  uint32
	Base  uint64
	Size  uint64
}

type memslotKey struct {
	group, slot uint32
}

func (w *Worker) addMemSlot(m MemSlot) {
	w.memslots[memslotKey{m.Group, m.Slot}] = m
	slog.Debug("memslot added", "group", m.Group, "slot", m.Slot, "size", m.Size)
}

func (w *Worker) delMemSlot(group, slot uint32) {
	delete(w.memslots, memslotKey{group, slot})
	slog.Debug("memslot removed", "group", group, "slot", slot)
}

func (w *Worker) resetMemSlots() {
	clear(w.memslots)
}

// checkMemSlot rejects commands whose memory is not in a registered slot.
func (w *Worker) checkMemSlot(cmd *ir.Command) {
	if _, ok := w.memslots[memslotKey{cmd.Group, cmd.Slot}]; ok {
		return
	}
	fatalWith(ErrCodeBadMemslot, map[string]string{
		"group": strconv.FormatUint(uint64(cmd.Group), 10),
		"slot":  strconv.FormatUint(uint64(cmd.Slot), 10),
		"kind":  cmd.Kind.String(),
	}, "command from an unregistered memory slot")
}
