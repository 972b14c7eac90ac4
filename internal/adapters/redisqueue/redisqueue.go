// Package redisqueue implements contracts.QueueClient and
// contracts.CancellationSource over Redis: a preloaded Lua script pops
// claims atomically, and pub/sub fans out cancellation messages.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fluxforge/workercore/internal/contracts"
)

// claimScript atomically pops up to n task IDs off the pending queue and
// moves them to a claimed set, so two workers racing a ClaimWork call never
// both receive the same task.
const claimScript = `
local n = tonumber(ARGV[1])
local ids = redis.call('LPOP', KEYS[1], n)
if not ids then return {} end
for _, id in ipairs(ids) do
	redis.call('SADD', KEYS[2], id)
end
return ids
`

// Queue is a Redis-backed contracts.QueueClient keyed off one pending list
// and one claimed set.
type Queue struct {
	client     *redis.Client
	claimSHA   string
	pendingKey string
	claimedKey string
	taskKey    func(id string) string
}

// New connects to addr and preloads the claim script.
func New(ctx context.Context, addr, password string, db int) (*Queue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, claimScript).Result()
	if err != nil {
		return nil, fmt.Errorf("preload claim script: %w", err)
	}

	return &Queue{
		client:     client,
		claimSHA:   sha,
		pendingKey: "workercore:pending",
		claimedKey: "workercore:claimed",
		taskKey:    func(id string) string { return "workercore:task:" + id },
	}, nil
}

// ClaimWork pops up to n pending task IDs and hydrates each into a Claim.
func (q *Queue) ClaimWork(ctx context.Context, n int) ([]contracts.Claim, error) {
	res, err := q.client.EvalSha(ctx, q.claimSHA, []string{q.pendingKey, q.claimedKey}, n).Result()
	if err != nil {
		return nil, fmt.Errorf("claim work: %w", err)
	}
	ids, ok := res.([]interface{})
	if !ok || len(ids) == 0 {
		return nil, nil
	}

	claims := make([]contracts.Claim, 0, len(ids))
	for _, raw := range ids {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		claim, err := q.hydrate(ctx, id)
		if err != nil {
			continue
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// hydrate loads the task payload and bumps its run counter, assigning the
// freshly claimed run its RunID.
func (q *Queue) hydrate(ctx context.Context, id string) (contracts.Claim, error) {
	payload, err := q.client.Get(ctx, q.taskKey(id)).Result()
	if err != nil {
		return contracts.Claim{}, fmt.Errorf("load task %s: %w", id, err)
	}

	var task contracts.Task
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return contracts.Claim{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	task.ID = id

	runID, err := q.client.Incr(ctx, "workercore:run_seq:"+id).Result()
	if err != nil {
		return contracts.Claim{}, fmt.Errorf("assign run id for %s: %w", id, err)
	}

	return contracts.Claim{
		RunID:  runID,
		Task:   task,
		Status: contracts.ClaimStatus{TaskID: id},
	}, nil
}

// CancellationSource is a Redis pub/sub fed contracts.CancellationSource.
type CancellationSource struct {
	sub *redis.PubSub
	out chan contracts.CancellationMessage
}

// NewCancellationSource subscribes to the worker-cancellation channel.
func NewCancellationSource(ctx context.Context, client *redis.Client) *CancellationSource {
	sub := client.Subscribe(ctx, "workercore:cancellations")
	src := &CancellationSource{sub: sub, out: make(chan contracts.CancellationMessage, 16)}
	go src.pump(ctx)
	return src
}

func (s *CancellationSource) pump(ctx context.Context) {
	defer close(s.out)
	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cm contracts.CancellationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
				continue
			}
			select {
			case s.out <- cm:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Messages implements contracts.CancellationSource.
func (s *CancellationSource) Messages() <-chan contracts.CancellationMessage { return s.out }

// Close tears down the subscription.
func (s *CancellationSource) Close() error { return s.sub.Close() }
