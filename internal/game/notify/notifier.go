package notify

//go:generate mockgen -destination=mock/mock_notifier.go -package=mocknotify -source=notifier.go

import (
	"github.com/udisondev/sigils/internal/model"
)

// Notifier delivers notices to the player behind target.
// Implementations must not block.
type Notifier interface {
	Notify(target model.EntityID, n Notice)
}
