package cart

import "context"

type Repository interface {
	Load(ctx context.Context, userID string) (*Cart, error)
	// CreateIfAbsent stores c unless the user already owns a cart; either way the stored cart is returned.
	CreateIfAbsent(ctx context.Context, c *Cart) (*Cart, error)
	// Replace writes c only if the stored version still equals c.Version and
	// returns the stored copy with the bumped version.
	Replace(ctx context.Context, c *Cart) (*Cart, error)
}
