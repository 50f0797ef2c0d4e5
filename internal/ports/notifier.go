package ports

// Notifier reports sustained pipeline failure to an external channel and
// announces recovery. Implementations rate-limit per kind and must never
// propagate delivery failures into the pipeline.
type Notifier interface {
	Alert(kind, detail string)
	// Clear signals that the condition behind earlier alerts of this kind has
	// passed. Once no kind is failing anymore a single resolved message is
	// sent.
	Clear(kind string)
}
