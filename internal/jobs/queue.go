package jobs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/byggpilot/byggpilot/pkg/log"
)

type Executor func(ctx context.Context, job *GenerationJob) error

// Queue runs generation jobs on a fixed worker pool. Jobs survive a
// restart through the store; a live dedupe key admits one job at a time
// for the same document.
type Queue struct {
	workerCount int
	maxJobs     int
	store       Store

	mu         sync.RWMutex
	jobs       map[string]*GenerationJob
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	pendingIDs chan string
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewQueue(workerCount int, store Store) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	q := &Queue{
		workerCount: workerCount,
		maxJobs:     1000,
		store:       store,
		jobs:        make(map[string]*GenerationJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, 1024),
		stopCh:      make(chan struct{}),
	}
	q.restoreFromStore(context.Background())
	return q
}

// Enqueue admits a job unless a live job already covers the same dedupe
// key, in which case that job is returned with created=false.
func (q *Queue) Enqueue(req EnqueueRequest) (*GenerationJob, bool) {
	now := time.Now()
	key := req.dedupeKey()

	q.mu.Lock()
	if key != "" {
		if id, ok := q.dedupe[key]; ok {
			if existing, exists := q.jobs[id]; exists {
				snapshot := cloneJob(existing)
				q.mu.Unlock()
				return snapshot, false
			}
			delete(q.dedupe, key)
		}
	}

	id := fmt.Sprintf("job-%d", atomic.AddUint64(&q.idCounter, 1))
	job := &GenerationJob{
		ID:        id,
		Source:    req.Source,
		DedupeKey: key,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[id] = job
	if key != "" {
		q.dedupe[key] = id
	}
	started := q.started
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	if started {
		q.queueForWork(id)
	}
	return snapshot, true
}

func (q *Queue) Get(id string) (*GenerationJob, bool) {
	q.mu.RLock()
	job, ok := q.jobs[id]
	q.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

func (q *Queue) List() []*GenerationJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*GenerationJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	return ret
}

func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true

	pending := make([]string, 0)
	for id, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, id)
		}
	}
	q.mu.Unlock()

	for _, id := range pending {
		q.queueForWork(id)
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-q.stopCh:
					return
				case id := <-q.pendingIDs:
					q.runJob(exec, id)
				}
			}
		}()
	}
}

func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
		q.wg.Wait()
	})
}

func (q *Queue) runJob(exec Executor, id string) {
	job, ok := q.claim(id)
	if !ok {
		return
	}
	log.Info("Job %s started: %s", job.ID, job.Payload.Describe())
	q.finish(id, exec(context.Background(), job))
}

// claim moves a pending job to running; a job already claimed or since
// pruned is skipped.
func (q *Queue) claim(id string) (*GenerationJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.persistJob(snapshot)
	return snapshot, true
}

// finish records the outcome of a claimed job and frees its dedupe key
// so a later request for the same document starts fresh.
func (q *Queue) finish(id string, execErr error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	if execErr != nil {
		job.Status = StatusFailed
		job.Error = execErr.Error()
	} else {
		job.Status = StatusSuccess
		job.Error = ""
	}
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	evicted := q.evictFinishedLocked()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	if execErr != nil {
		log.Error("Job %s failed (%s): %v", snapshot.ID, snapshot.Payload.Describe(), execErr)
	} else {
		log.Info("Job %s finished: %s", snapshot.ID, snapshot.Payload.Describe())
	}

	q.persistJob(snapshot)
	q.dropFromStore(evicted)
}

func (q *Queue) queueForWork(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() { q.pendingIDs <- id }()
	}
}

func (q *Queue) releaseDedupeLocked(job *GenerationJob) {
	if job == nil || job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

// evictFinishedLocked drops the oldest finished jobs once the in-memory
// set exceeds maxJobs. Pending and running jobs are never evicted.
func (q *Queue) evictFinishedLocked() []string {
	if q.maxJobs <= 0 || len(q.jobs) <= q.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	finished := make([]candidate, 0, len(q.jobs))
	for id, job := range q.jobs {
		if job == nil || job.Status == StatusPending || job.Status == StatusRunning {
			continue
		}
		finished = append(finished, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(finished) == 0 {
		return nil
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].updatedAt.Before(finished[j].updatedAt)
	})

	toRemove := len(q.jobs) - q.maxJobs
	if toRemove > len(finished) {
		toRemove = len(finished)
	}

	evicted := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		id := finished[i].id
		if job := q.jobs[id]; job != nil {
			q.releaseDedupeLocked(job)
		}
		delete(q.jobs, id)
		evicted = append(evicted, id)
	}
	return evicted
}

func (q *Queue) dropFromStore(ids []string) {
	if q.store == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete evicted job %s from store: %v", id, err)
		}
	}
}

// restoreFromStore reloads persisted jobs at startup. A job caught
// running when the process died is requeued as pending; the executor is
// idempotent, so a second run is safe.
func (q *Queue) restoreFromStore(ctx context.Context) {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from store: %v", err)
		return
	}

	now := time.Now()
	requeued := make([]*GenerationJob, 0)
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			requeued = append(requeued, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
		q.bumpIDCounterLocked(job.ID)
	}
	q.mu.Unlock()

	if len(loaded) > 0 {
		log.Info("Restored %d jobs from store, requeued %d interrupted", len(loaded), len(requeued))
	}
	for _, job := range requeued {
		q.persistJob(job)
	}
}

func (q *Queue) bumpIDCounterLocked(jobID string) {
	if !strings.HasPrefix(jobID, "job-") {
		return
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(jobID, "job-"), 10, 64)
	if err != nil {
		return
	}
	if n > q.idCounter {
		q.idCounter = n
	}
}

func (q *Queue) persistJob(job *GenerationJob) {
	if q.store == nil || job == nil {
		return
	}
	if err := q.store.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func cloneJob(job *GenerationJob) *GenerationJob {
	if job == nil {
		return nil
	}
	tmp := *job
	return &tmp
}
