// Package cache is a Redis read-through cache for donation pages. Every
// method degrades gracefully: a nil *Cache or an unreachable Redis just
// means every read falls through to Postgres.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minidoge/donation-tracker/internal/models"
)

const pageTTL = 30 * time.Second

type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client}
}

func pageKey(page, pageSize int) string {
	return fmt.Sprintf("donations:page:%d:%d", page, pageSize)
}

// DonationPage returns a cached page, or (nil, false) on miss or error.
func (c *Cache) DonationPage(ctx context.Context, page, pageSize int) (*models.DonationPage, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, pageKey(page, pageSize)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: donation page get failed: %v", err)
		}
		return nil, false
	}

	var p models.DonationPage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("cache: donation page unmarshal failed: %v", err)
		return nil, false
	}
	return &p, true
}

// SetDonationPage stores a page with a short TTL.
func (c *Cache) SetDonationPage(ctx context.Context, p *models.DonationPage) {
	if c == nil || p == nil {
		return
	}

	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("cache: donation page marshal failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, pageKey(p.Page, p.PageSize), data, pageTTL).Err(); err != nil {
		log.Printf("cache: donation page set failed: %v", err)
	}
}

// InvalidateDonations drops every cached donation page. Called after each
// aggregation pass writes new aggregates.
func (c *Cache) InvalidateDonations(ctx context.Context) {
	if c == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, "donations:page:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("cache: invalidate %s failed: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: invalidate scan failed: %v", err)
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
