// Package config loads docsmith settings for the server, queue, rate
// limiter, event bus, NSQ relay and tracing. Load starts from built-in
// defaults, merges an optional config.yaml from the working directory and
// then DOCSMITH_-prefixed environment variables (DOCSMITH_QUEUE_WORKERS for
// queue.workers), and validates the result with struct tags.
package config
