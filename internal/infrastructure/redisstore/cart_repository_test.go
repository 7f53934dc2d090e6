package redisstore

import (
	"context"
	"os"
	"sync"
	"testing"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/cart"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestEncodeDecodeKeepsSnapshot(t *testing.T) {
	c := domain.New("c1", "u1")
	_, err := c.AddLine("l1", "p1", 2, domain.Snapshot{Name: "Mug", Price: decimal.RequireFromString("4.50")})
	require.NoError(t, err)

	doc, err := encodeCart(c)
	require.NoError(t, err)

	got, err := decodeCart(doc, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Mug", got.Lines[0].Snapshot.Name)
	assert.True(t, decimal.RequireFromString("9").Equal(got.Total()))
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	doc, err := encodeCart(domain.New("c1", "u1"))
	require.NoError(t, err)

	_, err = decodeCart(doc, "seven")
	assert.Error(t, err)
	_, err = decodeCart(doc, nil)
	assert.Error(t, err)
	_, err = decodeCart(42, "1")
	assert.Error(t, err)
}

type CartRepositoryTestSuite struct {
	suite.Suite
	client *redis.Client
	repo   *CartRepository
	ctx    context.Context
}

func TestCartRepository(t *testing.T) {
	if os.Getenv("TEST_REDIS_ADDR") == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	suite.Run(t, new(CartRepositoryTestSuite))
}

func (s *CartRepositoryTestSuite) SetupSuite() {
	s.client = redis.NewClient(&redis.Options{Addr: os.Getenv("TEST_REDIS_ADDR")})
	s.repo = NewCartRepository(s.client)
	s.ctx = context.Background()
}

func (s *CartRepositoryTestSuite) TearDownSuite() {
	s.client.Close()
}

func (s *CartRepositoryTestSuite) SetupTest() {
	s.client.FlushDB(s.ctx)
}

func (s *CartRepositoryTestSuite) TestCreateIfAbsentKeepsExisting() {
	_, err := s.repo.Load(s.ctx, "u1")
	s.ErrorIs(err, domain.ErrNotFound)

	first, err := s.repo.CreateIfAbsent(s.ctx, domain.New("c1", "u1"))
	s.Require().NoError(err)
	s.Equal(int64(1), first.Version)

	second, err := s.repo.CreateIfAbsent(s.ctx, domain.New("c2", "u1"))
	s.Require().NoError(err)
	s.Equal("c1", second.ID)
}

func (s *CartRepositoryTestSuite) TestReplaceChecksVersion() {
	c, err := s.repo.CreateIfAbsent(s.ctx, domain.New("c1", "u1"))
	s.Require().NoError(err)

	_, err = c.AddLine("l1", "p1", 1, domain.Snapshot{Name: "Mug", Price: decimal.NewFromInt(3)})
	s.Require().NoError(err)

	stored, err := s.repo.Replace(s.ctx, c)
	s.Require().NoError(err)
	s.Equal(int64(2), stored.Version)

	_, err = s.repo.Replace(s.ctx, c)
	s.ErrorIs(err, domain.ErrVersionConflict)

	loaded, err := s.repo.Load(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(2), loaded.Version)
	s.Len(loaded.Lines, 1)

	_, err = s.repo.Replace(s.ctx, domain.New("c9", "ghost"))
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *CartRepositoryTestSuite) TestConcurrentReplaceHasOneWinner() {
	base, err := s.repo.CreateIfAbsent(s.ctx, domain.New("c1", "u1"))
	s.Require().NoError(err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.repo.Replace(s.ctx, base.Clone()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)
}
