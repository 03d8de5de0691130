package core

import "time"

const (
	TrashBook        TrashKind = "book"
	TrashCategory    TrashKind = "category"
	TrashAccount     TrashKind = "account"
	TrashTransaction TrashKind = "transaction"
)

type (
	// TrashKind tags which entity a recycle bin item wraps.
	TrashKind string

	// TrashItem is one soft-deleted entity shown in the recycle bin.
	TrashItem struct {
		Kind      TrashKind
		ID        string
		BookID    string
		Label     string
		DeletedAt time.Time
	}
)
