package docid

// Mapping translates between slots and external identifiers. It is
// immutable once created and safe for concurrent reads.
type Mapping struct {
	ids   []ID
	slots map[ID]uint32
}

// NewMapping copies ids into a new Mapping. Duplicate identifiers are
// allowed; Slot resolves a duplicate to its lowest slot.
func NewMapping(ids []ID) *Mapping {
	m := &Mapping{
		ids:   make([]ID, len(ids)),
		slots: make(map[ID]uint32, len(ids)),
	}
	copy(m.ids, ids)
	for slot, id := range m.ids {
		if _, seen := m.slots[id]; !seen {
			m.slots[id] = uint32(slot)
		}
	}
	return m
}

func (m *Mapping) Len() int {
	return len(m.ids)
}

// ID returns the identifier stored for slot. It panics if slot is out of
// range, which would mean a corrupted index.
func (m *Mapping) ID(slot uint32) ID {
	return m.ids[slot]
}

func (m *Mapping) Slot(id ID) (uint32, bool) {
	slot, ok := m.slots[id]
	return slot, ok
}

// IDs returns a copy of the identifiers in slot order.
func (m *Mapping) IDs() []ID {
	out := make([]ID, len(m.ids))
	copy(out, m.ids)
	return out
}
