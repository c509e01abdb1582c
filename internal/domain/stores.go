package domain

import "context"

// ProfileStore persists the belief state and memory of each user. Save
// writes both entities in a single transaction.
type ProfileStore interface {
	Load(ctx context.Context, userID string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
	ListUserIDs(ctx context.Context) ([]string, error)
}
