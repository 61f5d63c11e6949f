package outbound

// TaskDispatcher submits work to the shared worker pool.
type TaskDispatcher interface {
	Submit(task func()) error
}
