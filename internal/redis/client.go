package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// BroadcastChannel is the pub/sub channel carrying send progress for one operator.
func BroadcastChannel(operatorID string) string {
	return fmt.Sprintf("broadcast:progress:%s", operatorID)
}

// OTPRequestKey is the rate-limit key for passcode requests to one owner.
// The address is hashed so raw emails never land in Redis.
func OTPRequestKey(purpose, ownerHash string) string {
	return fmt.Sprintf("otp:%s:%s", purpose, ownerHash)
}
