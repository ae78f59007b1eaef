package reactor

// BackendKind selects the watch registry representation.
type BackendKind uint8

const (
	// IndexSet keeps one bit per handle and interest and waits with select(2).
	// Handles must be below 1024.
	IndexSet BackendKind = iota

	// SlotTable keeps a dense, fixed capacity table of handles, each with its
	// own waitable object.
	SlotTable
)

func (k BackendKind) String() string {
	switch k {
	case IndexSet:
		return "indexset"
	case SlotTable:
		return "slottable"
	}
	return "unknown"
}

// DefaultCapacity is the slot-table size when none is configured.
const DefaultCapacity = 64

type options struct {
	kind     BackendKind
	capacity int
}

func defaultOptions() options {
	return options{
		kind:     IndexSet,
		capacity: DefaultCapacity,
	}
}

type Option func(*options)

func WithBackend(kind BackendKind) Option {
	return func(o *options) {
		o.kind = kind
	}
}

// WithCapacity bounds the slot-table backend. Values below 1 keep the default.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}
