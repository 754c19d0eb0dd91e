package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Status is the persisted state of one processing job.
type Status struct {
	State      string         `json:"state"`
	Progress   int            `json:"progress"`
	Message    string         `json:"message"`
	OutputPath string         `json:"output_path,omitempty"`
	Start      *time.Time     `json:"start_time,omitempty"`
	End        *time.Time     `json:"end_time,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RedisStatus stores job status hashes under job:<id>:status.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	c, err := connect(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisStatusFromClient(c, ttl), nil
}

// NewRedisStatusFromClient reuses an existing client. Entries expire after
// ttl, 7 days when ttl is not positive.
func NewRedisStatusFromClient(c *redis.Client, ttl time.Duration) *RedisStatus {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisStatus{client: c, keyNS: "job", ttl: ttl}
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

// Set merges st into the stored hash; zero-valued optional fields are left untouched.
func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m := map[string]any{
		"state":    st.State,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.OutputPath != "" {
		m["output_path"] = st.OutputPath
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return fmt.Errorf("encode status metadata: %w", err)
		}
		m["metadata"] = string(b)
	}

	k := s.key(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, m)
	pipe.Expire(ctx, k, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return decodeStatus(res), true, nil
}

func decodeStatus(res map[string]string) Status {
	st := Status{
		State:      res["state"],
		Message:    res["message"],
		OutputPath: res["output_path"],
	}
	if p, err := strconv.Atoi(res["progress"]); err == nil {
		st.Progress = p
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }
