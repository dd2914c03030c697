package workers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	StreamCompile = "fun-portal:tasks:compile"
	StreamJudge   = "fun-portal:tasks:judge"
)

// CompileTask asks a compiler worker to build one submission. The token is
// the single-use credential the worker must present on every callback.
type CompileTask struct {
	SubmissionID string `json:"id"`
	Token        string `json:"token"`
}

// RoundSpec tells the judge which round of the match it is running and
// which side moves first.
type RoundSpec struct {
	RoundID string `json:"round_id"`
	Token   string `json:"token"`
	Seq     int    `json:"seq"`
	Swapped bool   `json:"swapped"`
}

// JudgeTask asks a judge worker to run one round between two compiled
// submissions.
type JudgeTask struct {
	MatchID       string    `json:"match_id"`
	Submission1ID string    `json:"s1_id"`
	Submission2ID string    `json:"s2_id"`
	Round         RoundSpec `json:"round"`
}

// TaskPublisher is the dispatch side of the task channel. Delivery is
// at-least-once; consumers must tolerate duplicates (the single-use task
// token makes re-delivery a detectable no-op).
type TaskPublisher interface {
	PublishCompile(ctx context.Context, task CompileTask) error
	PublishJudge(ctx context.Context, task JudgeTask) error
}

// RedisTaskPublisher appends tasks to Redis streams, one stream per task
// kind. Compiler and judge workers consume them through consumer groups.
type RedisTaskPublisher struct {
	rdb *redis.Client
}

func NewRedisTaskPublisher(redisURL string) (*RedisTaskPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisTaskPublisher{rdb: redis.NewClient(opt)}, nil
}

func (p *RedisTaskPublisher) PublishCompile(ctx context.Context, task CompileTask) error {
	return p.publish(ctx, StreamCompile, task)
}

func (p *RedisTaskPublisher) PublishJudge(ctx context.Context, task JudgeTask) error {
	return p.publish(ctx, StreamJudge, task)
}

func (p *RedisTaskPublisher) publish(ctx context.Context, stream string, task interface{}) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

func (p *RedisTaskPublisher) Close() error {
	return p.rdb.Close()
}
