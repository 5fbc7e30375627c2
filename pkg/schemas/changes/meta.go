package changes

import "github.com/roboricindustries/raycon-changefeed/pkg/schemas/common"

const (
	EventType = "entity.changed.v1"
	Exchange  = "changes"
)

var EntityChangedMeta = common.EventMeta{
	EventType: EventType,
	Exchange:  Exchange,
}
