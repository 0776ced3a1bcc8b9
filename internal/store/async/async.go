// Package async queues store writes on a background worker pool so request
// handlers never block on the external datastore.
// WARNING: queued writes may be lost if the process crashes before draining.
package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/andylee303/jupyterlab-edu-extension/internal/store"
)

// Source yields the store to write to, or nil when persistence is not
// configured. Resolving it per job means reconfiguration takes effect without
// restarting the recorder.
type Source func() store.Store

// Config configures the recorder's worker pool.
type Config struct {
	ChannelBuffer int           // job queue size (default: 1000)
	NumWorkers    int           // parallel writers (default: 2)
	WriteTimeout  time.Duration // per-write deadline (default: 10s)
	Logger        *log.Logger   // optional diagnostics
}

type job func(ctx context.Context, s store.Store)

// Recorder executes store writes asynchronously. Enqueue operations never
// block and never surface errors to callers; failures are logged and dropped.
type Recorder struct {
	source       Source
	jobChan      chan job
	writeTimeout time.Duration
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
	logger       *log.Logger
}

// NewRecorder starts the worker pool.
func NewRecorder(source Source, cfg Config) *Recorder {
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 1000
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	r := &Recorder{
		source:       source,
		jobChan:      make(chan job, cfg.ChannelBuffer),
		writeTimeout: cfg.WriteTimeout,
		stopChan:     make(chan struct{}),
		logger:       cfg.Logger,
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	if r.logger != nil {
		r.logger.Printf("[async-store] started %d worker(s), buffer=%d", cfg.NumWorkers, cfg.ChannelBuffer)
	}

	return r
}

func (r *Recorder) worker(workerID int) {
	defer r.wg.Done()

	run := func(j job) {
		s := r.source()
		if s == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		defer cancel()
		j(ctx, s)
	}

	for {
		select {
		case j := <-r.jobChan:
			run(j)
		case <-r.stopChan:
			// Drain remaining jobs before exiting.
			for {
				select {
				case j := <-r.jobChan:
					run(j)
				default:
					if r.logger != nil {
						r.logger.Printf("[async-store] worker-%d drained", workerID)
					}
					return
				}
			}
		}
	}
}

// enqueue queues a job without blocking; a full queue drops the write.
func (r *Recorder) enqueue(name string, j job) {
	select {
	case r.jobChan <- j:
	default:
		if r.logger != nil {
			r.logger.Printf("[async-store] WARNING: queue full, dropping %s", name)
		}
	}
}

// UpsertStudent queues a student upsert.
func (r *Recorder) UpsertStudent(studentID, name string) {
	r.enqueue("student upsert", func(ctx context.Context, s store.Store) {
		if err := s.UpsertStudent(ctx, studentID, name); err != nil && r.logger != nil {
			r.logger.Printf("[async-store] ERROR upserting student %s: %v", studentID, err)
		}
	})
}

// EndSession queues a session end stamp.
func (r *Recorder) EndSession(sessionID string) {
	r.enqueue("session end", func(ctx context.Context, s store.Store) {
		if err := s.EndSession(ctx, sessionID); err != nil && r.logger != nil {
			r.logger.Printf("[async-store] ERROR ending session %s: %v", sessionID, err)
		}
	})
}

// LogExecution queues an execution record.
func (r *Recorder) LogExecution(entry store.ExecutionLog) {
	r.enqueue("execution log", func(ctx context.Context, s store.Store) {
		if _, err := s.LogExecution(ctx, entry); err != nil && r.logger != nil {
			r.logger.Printf("[async-store] ERROR logging execution for session %s: %v", entry.SessionID, err)
		}
	})
}

// LogChat queues a chat record.
func (r *Recorder) LogChat(entry store.ChatLog) {
	r.enqueue("chat log", func(ctx context.Context, s store.Store) {
		if _, err := s.LogChat(ctx, entry); err != nil && r.logger != nil {
			r.logger.Printf("[async-store] ERROR logging chat for session %s: %v", entry.SessionID, err)
		}
	})
}

// Close drains the queue and stops the workers. Safe to call more than once.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
