package transport

// Config holds the tunables a DialOption can set.
type Config struct {
	readBufSize   int
	pollTimeoutMs int
}

// DialOption configures a Blocking or a Poller.
type DialOption func(*Config)

// defaultReadBufSize is the chunk size used when a Connection wants a read
// and no WithReadBufferSize option overrides it; a D-Bus session-bus message
// is rarely larger than a few KiB, but large array bodies (the ListNames
// string array on a busy bus) can exceed it, which is fine since Reader
// accumulates across calls.
const defaultReadBufSize = 4096

// defaultPollTimeoutMs is epoll_wait's timeout when no WithPollTimeout
// option overrides it: block indefinitely.
const defaultPollTimeoutMs = -1

func newConfig(opts []DialOption) Config {
	cfg := Config{
		readBufSize:   defaultReadBufSize,
		pollTimeoutMs: defaultPollTimeoutMs,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithReadBufferSize overrides the buffer size Blocking.Step and Ring.Step
// allocate for each read syscall.
func WithReadBufferSize(size int) DialOption {
	return func(c *Config) { c.readBufSize = size }
}

// WithPollTimeout overrides the epoll_wait timeout, in milliseconds, that a
// Poller created with this option passes to RunOnce by default. -1 means
// block indefinitely.
func WithPollTimeout(ms int) DialOption {
	return func(c *Config) { c.pollTimeoutMs = ms }
}
