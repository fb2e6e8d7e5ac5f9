package dedupe

type options struct {
	maxSize int
}

// Option applies a configuration option to NewInMemoryDeduper.
type Option func(*options)

// WithMaxSize sets how many ids are remembered. Values < 1 are ignored.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		if maxSize > 0 {
			o.maxSize = maxSize
		}
	}
}
