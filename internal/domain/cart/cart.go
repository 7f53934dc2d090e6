package cart

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("cart: not found")
	ErrLineNotFound    = errors.New("cart: line not found")
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	// ErrVersionConflict is returned by Replace when the stored cart changed since it was read.
	ErrVersionConflict = errors.New("cart: version conflict")
)

// Snapshot is display data copied from the product when a line is created. It is
// never used for pricing an order.
type Snapshot struct {
	Name  string
	Price decimal.Decimal
}

type Line struct {
	ID        string
	ProductID string
	Quantity  int
	Snapshot  Snapshot
}

type Cart struct {
	ID     string
	UserID string
	Lines  []Line
	// Version is the optimistic concurrency token; stores bump it on every Replace.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, userID string) *Cart {
	now := time.Now().UTC()
	return &Cart{
		ID:        id,
		UserID:    userID,
		Lines:     []Line{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddLine merges quantity into the existing line for productID, or appends a new
// line identified by newLineID. The snapshot is refreshed on merge.
func (c *Cart) AddLine(newLineID, productID string, quantity int, snap Snapshot) (Line, error) {
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			if quantity > math.MaxInt-c.Lines[i].Quantity {
				return Line{}, ErrInvalidQuantity
			}
			c.Lines[i].Quantity += quantity
			c.Lines[i].Snapshot = snap
			c.touch()
			return c.Lines[i], nil
		}
	}
	line := Line{ID: newLineID, ProductID: productID, Quantity: quantity, Snapshot: snap}
	c.Lines = append(c.Lines, line)
	c.touch()
	return line, nil
}

// RemoveLine reports whether a line was removed.
func (c *Cart) RemoveLine(lineID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.touch()
			return true
		}
	}
	return false
}

// UpdateLine sets the quantity of the line matching both lineID and productID.
// A zero quantity removes the line.
func (c *Cart) UpdateLine(lineID, productID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ID != lineID || c.Lines[i].ProductID != productID {
			continue
		}
		if quantity == 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		} else {
			c.Lines[i].Quantity = quantity
		}
		c.touch()
		return nil
	}
	return ErrLineNotFound
}

func (c *Cart) Line(lineID string) (Line, bool) {
	for _, l := range c.Lines {
		if l.ID == lineID {
			return l, true
		}
	}
	return Line{}, false
}

func (c *Cart) Clear() {
	c.Lines = []Line{}
	c.touch()
}

func (c *Cart) IsEmpty() bool { return len(c.Lines) == 0 }

// Total sums snapshot price times quantity. Display only.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Snapshot.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = make([]Line, len(c.Lines))
	copy(clone.Lines, c.Lines)
	return &clone
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}
