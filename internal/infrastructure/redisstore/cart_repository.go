package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	fieldDoc     = "doc"
	fieldVersion = "version"
)

// Returns the stored {doc, version}; writes ARGV only when the key is new.
var createIfAbsentScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
    return redis.call('HMGET', key, 'doc', 'version')
end
redis.call('HSET', key, 'doc', ARGV[1], 'version', ARGV[2])
return {ARGV[1], ARGV[2]}
`)

// Returns -1 when the cart is missing, 0 on version mismatch, 1 when written.
var replaceScript = redis.NewScript(`
local key = KEYS[1]
local current = redis.call('HGET', key, 'version')
if not current then
    return -1
end
if tonumber(current) ~= tonumber(ARGV[2]) then
    return 0
end
redis.call('HSET', key, 'doc', ARGV[1], 'version', tonumber(ARGV[2]) + 1)
return 1
`)

// CartRepository keeps each cart in a hash at cart:{userID}. The version field
// is compared and bumped inside a Lua script, so Replace is atomic per cart.
type CartRepository struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewCartRepository(client redis.UniversalClient) *CartRepository {
	return &CartRepository{client: client, now: time.Now}
}

func (r *CartRepository) Key(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func (r *CartRepository) Load(ctx context.Context, userID string) (*domain.Cart, error) {
	vals, err := r.client.HMGet(ctx, r.Key(userID), fieldDoc, fieldVersion).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load cart %s: %w", userID, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, domain.ErrNotFound
	}
	return decodeCart(vals[0], vals[1])
}

func (r *CartRepository) CreateIfAbsent(ctx context.Context, c *domain.Cart) (*domain.Cart, error) {
	if c == nil || c.UserID == "" {
		return nil, fmt.Errorf("cart repository: user id is required")
	}
	doc, err := encodeCart(c)
	if err != nil {
		return nil, err
	}

	res, err := createIfAbsentScript.Run(ctx, r.client, []string{r.Key(c.UserID)}, doc, 1).Slice()
	if err != nil {
		return nil, fmt.Errorf("redis: create cart %s: %w", c.UserID, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("redis: create cart %s: unexpected reply of %d values", c.UserID, len(res))
	}
	return decodeCart(res[0], res[1])
}

func (r *CartRepository) Replace(ctx context.Context, c *domain.Cart) (*domain.Cart, error) {
	if c == nil || c.UserID == "" {
		return nil, fmt.Errorf("cart repository: user id is required")
	}
	stored := c.Clone()
	stored.UpdatedAt = r.now().UTC()
	doc, err := encodeCart(stored)
	if err != nil {
		return nil, err
	}

	res, err := replaceScript.Run(ctx, r.client, []string{r.Key(c.UserID)}, doc, c.Version).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis: replace cart %s: %w", c.UserID, err)
	}
	switch res {
	case 1:
		stored.Version = c.Version + 1
		return stored, nil
	case 0:
		return nil, domain.ErrVersionConflict
	default:
		return nil, domain.ErrNotFound
	}
}

type cartDoc struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Lines     []lineDoc `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type lineDoc struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

func encodeCart(c *domain.Cart) (string, error) {
	d := cartDoc{
		ID:        c.ID,
		UserID:    c.UserID,
		Lines:     make([]lineDoc, 0, len(c.Lines)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, l := range c.Lines {
		d.Lines = append(d.Lines, lineDoc{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Name:      l.Snapshot.Name,
			Price:     l.Snapshot.Price,
		})
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("redis: encode cart %s: %w", c.UserID, err)
	}
	return string(b), nil
}

func decodeCart(rawDoc, rawVersion any) (*domain.Cart, error) {
	doc, ok := rawDoc.(string)
	if !ok {
		return nil, fmt.Errorf("redis: unexpected cart document type %T", rawDoc)
	}
	var d cartDoc
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("redis: decode cart: %w", err)
	}
	version, err := parseVersion(rawVersion)
	if err != nil {
		return nil, err
	}

	c := &domain.Cart{
		ID:        d.ID,
		UserID:    d.UserID,
		Lines:     make([]domain.Line, 0, len(d.Lines)),
		Version:   version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, l := range d.Lines {
		c.Lines = append(c.Lines, domain.Line{
			ID:        l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Snapshot:  domain.Snapshot{Name: l.Name, Price: l.Price},
		})
	}
	return c, nil
}

func parseVersion(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("redis: cart version %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, errors.New("redis: cart version missing")
	}
}
