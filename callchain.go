package esq

type callchained struct {
	fn   func(*QueryBuilder, FeatureFunc) (*Result, error)
	next *callchained
}

func (cc *callchained) add(f Feature) *callchained {
	return &callchained{
		fn:   f.Process,
		next: cc,
	}
}

// callchain runs features in registration order, each one wrapping the
// rest of the chain and, innermost, the terminal backend call.
type callchain struct {
	root *callchained
}

func newCallchain(features ...Feature) *callchain {
	cc := &callchain{}
	for _, f := range features {
		cc.add(f)
	}
	return cc
}

func (cc *callchain) add(f Feature) {
	if cc.root == nil {
		cc.root = &callchained{}
	}

	cc.root = cc.root.add(f)
}

func (cc *callchain) exec(qb *QueryBuilder, fn FeatureFunc) (*Result, error) {
	n := cc.root
	for n != nil && n.fn != nil {
		fn = func(ff FeatureFunc, c *callchained) FeatureFunc {
			return func(qb *QueryBuilder) (*Result, error) {
				return c.fn(qb, ff)
			}
		}(fn, n)
		n = n.next
	}

	return fn(qb)
}
