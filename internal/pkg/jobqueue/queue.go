package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis layout: one string per job plus a pending and a processing list of ids.
const (
	JobKeyPrefix     = "clubdues:jobs:"
	JobQueueKey      = "clubdues:jobs_pending"
	JobProcessingKey = "clubdues:jobs_processing"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour

	defaultWorkers = 3
	dequeueWait    = time.Second
	retryBackoff   = 30 * time.Second
	stuckAfter     = 10 * time.Minute
	sweepInterval  = time.Minute
)

// Processor handles one job type. A returned error schedules a retry.
type Processor func(ctx context.Context, job *Job) error

// Queue is a Redis backed job queue with a fixed number of workers.
type Queue struct {
	client     *redis.Client
	workers    int
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	processors map[JobType]Processor
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Queue{
		client:     client,
		workers:    workers,
		stopCh:     make(chan struct{}),
		processors: make(map[JobType]Processor),
	}
}

// Register installs the processor for a job type. Call before Start.
func (q *Queue) Register(jobType JobType, p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processors[jobType] = p
}

// Start launches the workers and the sweeper that requeues jobs left in the
// processing list by a crashed worker.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.sweeper()
}

func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// EnqueueJob stores a new pending job and pushes its id.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	log.Debugf("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// PendingCount returns the number of jobs waiting for a worker.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// ProcessingCount returns the number of jobs claimed by workers.
func (q *Queue) ProcessingCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		job, err := q.next(ctx)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
			time.Sleep(dequeueWait)
			continue
		}
		q.run(ctx, job)
	}
}

// next claims the oldest pending job by moving its id to the processing list.
func (q *Queue) next(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, dequeueWait).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.load(ctx, id)
	if err != nil {
		q.release(ctx, id)
		return nil, err
	}
	return job, nil
}

func (q *Queue) run(ctx context.Context, job *Job) {
	defer q.release(ctx, job.ID)

	job.MarkAsProcessing()
	q.save(ctx, job)

	q.mu.Lock()
	process, ok := q.processors[job.Type]
	q.mu.Unlock()

	var err error
	if ok {
		err = process(ctx, job)
	} else {
		err = fmt.Errorf("no processor for job type %s", job.Type)
	}

	if err == nil {
		if derr := q.client.Del(ctx, JobKeyPrefix+job.ID).Err(); derr != nil {
			log.Warnf("[JobQueue] Removing finished job %s failed: %v", job.ID, derr)
		}
		return
	}

	job.MarkAsFailed(err.Error())
	if !job.IsRetryable() {
		log.Errorf("[JobQueue] %s job %s gave up after %d attempts: %v", job.Type, job.ID, job.RetryCount, err)
		q.save(ctx, job)
		return
	}
	job.MarkAsRetrying()
	q.save(ctx, job)
	delay := retryBackoff * time.Duration(job.RetryCount)
	log.Warnf("[JobQueue] %s job %s failed (attempt %d/%d), retrying in %s: %v",
		job.Type, job.ID, job.RetryCount, job.MaxRetries, delay, err)
	id := job.ID
	time.AfterFunc(delay, func() {
		if perr := q.client.LPush(context.Background(), JobQueueKey, id).Err(); perr != nil {
			log.Errorf("[JobQueue] Requeueing job %s failed: %v", id, perr)
		}
	})
}

func (q *Queue) sweeper() {
	defer q.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			if n, err := q.sweep(context.Background(), time.Now()); err != nil {
				log.Errorf("[JobQueue] Sweep failed: %v", err)
			} else if n > 0 {
				log.Warnf("[JobQueue] Requeued %d stuck jobs", n)
			}
		}
	}
}

// sweep requeues jobs that have been processing for longer than stuckAfter
// and drops processing entries whose job data is gone.
func (q *Queue) sweep(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	requeued := 0
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			q.release(ctx, id)
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= stuckAfter {
			continue
		}
		job.Status = JobStatusPending
		job.ErrorMsg = "requeued after worker timeout"
		job.UpdatedAt = now
		q.save(ctx, job)
		q.release(ctx, id)
		if err := q.client.RPush(ctx, JobQueueKey, id).Err(); err != nil {
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

func (q *Queue) load(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) save(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Encoding job %s failed: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Saving job %s failed: %v", job.ID, err)
	}
}

func (q *Queue) release(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[JobQueue] Releasing job %s failed: %v", id, err)
	}
}
