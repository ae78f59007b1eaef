package reactor

type firing struct {
	h  Handle
	in Interest
}

type recorder struct {
	fired []firing
}

func (r *recorder) callback(h Handle, in Interest, _ any) {
	r.fired = append(r.fired, firing{h: h, in: in})
}

func (r *recorder) handles() []Handle {
	hs := make([]Handle, 0, len(r.fired))
	for _, f := range r.fired {
		hs = append(hs, f.h)
	}
	return hs
}
