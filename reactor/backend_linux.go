//go:build linux
// +build linux

package reactor

func newBackend(o options, g *Gate) (backend, error) {
	switch o.kind {
	case IndexSet:
		s, err := newIndexSet(g)
		if err != nil {
			return nil, err
		}
		return s, nil
	case SlotTable:
		return newSlotBackend(o.capacity), nil
	}
	return nil, ErrUnsupportedPlatform
}
