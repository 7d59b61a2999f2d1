package history

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mgauthier/tilewire/internal/wire"
)

// opTimeout bounds each Redis operation.
const opTimeout = 2 * time.Second

// redisKey returns the Redis key for a conversation's message list.
func redisKey(conversation string) string {
	return "conversation:" + conversation + ":messages"
}

// RedisStore persists conversation history in Redis using one list per
// conversation, oldest first.
type RedisStore struct {
	client  redis.Cmdable
	maxSize int64
}

// NewRedisStore creates a RedisStore retaining up to maxSize messages
// per conversation.
func NewRedisStore(client redis.Cmdable, maxSize int) *RedisStore {
	return &RedisStore{
		client:  client,
		maxSize: int64(maxSize),
	}
}

// Append pushes a message to the newest end and trims to maxSize.
func (s *RedisStore) Append(msg wire.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("history: marshal message: %v", err)
		return
	}

	key := redisKey(msg.Conversation)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -s.maxSize, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("history: append message: %v", err)
	}
}

// Page reads one page counted back from the newest end, oldest first.
func (s *RedisStore) Page(conversation string, perPage, offset int) []wire.ChatMessage {
	if perPage <= 0 || offset < 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	total, err := s.client.LLen(ctx, redisKey(conversation)).Result()
	if err != nil {
		log.Printf("history: count messages: %v", err)
		return nil
	}

	end := total - int64(offset)
	if end <= 0 {
		return nil
	}
	start := end - int64(perPage)
	if start < 0 {
		start = 0
	}

	vals, err := s.client.LRange(ctx, redisKey(conversation), start, end-1).Result()
	if err != nil {
		log.Printf("history: read messages: %v", err)
		return nil
	}

	msgs := make([]wire.ChatMessage, 0, len(vals))
	for _, v := range vals {
		var m wire.ChatMessage
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Count returns the number of retained messages for a conversation.
func (s *RedisStore) Count(conversation string) int {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := s.client.LLen(ctx, redisKey(conversation)).Result()
	if err != nil {
		log.Printf("history: count messages: %v", err)
		return 0
	}
	return int(n)
}
