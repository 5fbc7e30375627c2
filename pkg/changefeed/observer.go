package changefeed

// Observer is told about every per-target outcome.
type Observer interface {
	Published(entity, channel string)
	PublishFailed(entity, channel string)
	ResolveFailed(entity, channel string)
}

type NopObserver struct{}

func (NopObserver) Published(string, string)     {}
func (NopObserver) PublishFailed(string, string) {}
func (NopObserver) ResolveFailed(string, string) {}
