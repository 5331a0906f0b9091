// Package redis stores jobs as hashes and keeps the work queue in a list.
// Claims and conditional updates run as Lua scripts so each is atomic on the
// server.
package redis

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/DrBenedictPorkins/audio-diarizer/internal/app/errors"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/model"
	"github.com/DrBenedictPorkins/audio-diarizer/internal/app/repository"
)

// Config for the redis job store
type Config struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	JobTTL    time.Duration `yaml:"job_ttl"`
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "diarizer"
	}
}

// claimScript pops ids until it finds one still pending. Stale entries left
// by deletes or requeues are discarded.
var claimScript = goredis.NewScript(`
while true do
  local id = redis.call('RPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[1] .. id
  if redis.call('HGET', key, 'status') == 'pending' then
    redis.call('HSET', key, 'status', 'processing', 'started_at', ARGV[2])
    redis.call('HINCRBY', key, 'attempts', 1)
    redis.call('HINCRBY', key, 'rev', 1)
    return id
  end
end
`)

// updateScript writes a new revision only if status and revision are
// unchanged since the caller read them.
//
// returns 1 on success, 0 on revision mismatch, -1 when missing, -2 when
// the status moved.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local cur = redis.call('HMGET', KEYS[1], 'status', 'rev')
if cur[1] ~= ARGV[1] then
  return -2
end
if cur[2] ~= ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[3], 'attempts', ARGV[4], 'started_at', ARGV[5], 'doc', ARGV[6])
redis.call('HINCRBY', KEYS[1], 'rev', 1)
if tonumber(ARGV[7]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[7])
end
if ARGV[8] == '1' then
  redis.call('LPUSH', KEYS[2], ARGV[9])
end
return 1
`)

// JobStore implements repository.JobStore on redis
type JobStore struct {
	rdb goredis.UniversalClient
	cfg Config
}

// New connects to redis and verifies the connection
func New(ctx context.Context, cfg Config) (*JobStore, error) {
	cfg.ApplyDefaults()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, apperrors.Wrapf(err, "connect redis %s", cfg.Addr)
	}
	return NewWithClient(rdb, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(rdb goredis.UniversalClient, cfg Config) *JobStore {
	cfg.ApplyDefaults()
	return &JobStore{rdb: rdb, cfg: cfg}
}

func (s *JobStore) jobPrefix() string {
	return s.cfg.KeyPrefix + ":job:"
}

func (s *JobStore) jobKey(id string) string {
	return s.jobPrefix() + id
}

func (s *JobStore) queueKey() string {
	return s.cfg.KeyPrefix + ":queue"
}

func (s *JobStore) ttlSeconds() int64 {
	return int64(s.cfg.JobTTL / time.Second)
}

// Create writes the hash and pushes the id in one MULTI/EXEC
func (s *JobStore) Create(ctx context.Context, job *model.Job) error {
	doc, err := repository.EncodeJob(job)
	if err != nil {
		return err
	}
	key := s.jobKey(job.ID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"status", string(job.Status),
			"rev", 0,
			"attempts", job.Attempts,
			"started_at", repository.UnixNano(job.StartedAt),
			"doc", doc,
		)
		if s.cfg.JobTTL > 0 {
			pipe.Expire(ctx, key, s.cfg.JobTTL)
		}
		pipe.LPush(ctx, s.queueKey(), job.ID)
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, "create job")
	}
	return nil
}

// Claim pops the oldest pending job
func (s *JobStore) Claim(ctx context.Context, now time.Time) (*model.Job, error) {
	for {
		id, err := claimScript.Run(ctx, s.rdb,
			[]string{s.queueKey()}, s.jobPrefix(), now.UnixNano()).Text()
		if stderrors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, apperrors.Wrap(err, "claim job")
		}

		job, _, err := s.get(ctx, id)
		if stderrors.Is(err, repository.ErrNotFound) {
			// deleted between claim and read
			continue
		}
		return job, err
	}
}

// Get returns a job by id
func (s *JobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job, _, err := s.get(ctx, id)
	return job, err
}

func (s *JobStore) get(ctx context.Context, id string) (*model.Job, string, error) {
	vals, err := s.rdb.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, "", apperrors.Wrap(err, "get job")
	}
	if len(vals) == 0 {
		return nil, "", repository.ErrNotFound
	}

	job, err := repository.DecodeJob(vals["doc"])
	if err != nil {
		return nil, "", err
	}
	job.ID = id
	job.Status = model.JobStatus(vals["status"])
	job.Attempts, _ = strconv.Atoi(vals["attempts"])
	startedAt, _ := strconv.ParseInt(vals["started_at"], 10, 64)
	job.StartedAt = repository.FromUnixNano(startedAt)
	return job, vals["rev"], nil
}

// Update applies mutate under the revision check in updateScript
func (s *JobStore) Update(ctx context.Context, id string, from model.JobStatus, mutate repository.Mutation) (*model.Job, error) {
	for attempt := 0; attempt < repository.MaxUpdateAttempts; attempt++ {
		current, rev, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		next, requeue, err := repository.ApplyMutation(current, from, mutate)
		if err != nil {
			return nil, err
		}
		doc, err := repository.EncodeJob(next)
		if err != nil {
			return nil, err
		}

		requeueFlag := "0"
		if requeue {
			requeueFlag = "1"
		}
		res, err := updateScript.Run(ctx, s.rdb,
			[]string{s.jobKey(id), s.queueKey()},
			string(from), rev,
			string(next.Status), next.Attempts, repository.UnixNano(next.StartedAt), doc,
			s.ttlSeconds(), requeueFlag, id,
		).Int()
		if err != nil {
			return nil, apperrors.Wrap(err, "update job")
		}

		switch res {
		case 1:
			return next, nil
		case -1:
			return nil, repository.ErrNotFound
		}
		// status moved or revision bumped; re-read and let ApplyMutation decide
	}
	return nil, repository.ErrConcurrentUpdate
}

// Delete removes the hash and any queued reference
func (s *JobStore) Delete(ctx context.Context, id string) error {
	var del *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.jobKey(id))
		pipe.LRem(ctx, s.queueKey(), 0, id)
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, "delete job")
	}
	if del.Val() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByStatus scans job hashes. Intended for supervisors, not hot paths.
func (s *JobStore) ListByStatus(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	prefix := s.jobPrefix()
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(prefix):]
		job, _, err := s.get(ctx, id)
		if stderrors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.Status == status {
			jobs = append(jobs, job)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.Wrap(err, "scan jobs")
	}
	repository.SortByAge(jobs)
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// Ping checks connectivity
func (s *JobStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the client
func (s *JobStore) Close() error {
	return s.rdb.Close()
}
