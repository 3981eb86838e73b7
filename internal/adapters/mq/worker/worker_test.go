package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/cscx/pulse/internal/adapters/mq/queue"
	worker "github.com/cscx/pulse/internal/adapters/mq/worker"
	model "github.com/cscx/pulse/internal/domain/model"
	logging "github.com/cscx/pulse/pkg/logger"
)

// Mock implementations for testing.
type mockQueue struct {
	jobChan    chan queue.Job
	closeError error
	closeOnce  sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		jobChan: make(chan queue.Job, 10),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobChan
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.jobChan) })
	return mq.closeError
}

func (mq *mockQueue) addJob(j queue.Job) {
	mq.jobChan <- j
}

type mockRecomputer struct {
	processed map[string]int
	errors    map[string]error
	mu        sync.RWMutex
}

func newMockRecomputer() *mockRecomputer {
	return &mockRecomputer{
		processed: make(map[string]int),
		errors:    make(map[string]error),
	}
}

func (mr *mockRecomputer) Recompute(ctx context.Context, j queue.Job) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if err, exists := mr.errors[j.EntityID]; exists {
		return err
	}
	mr.processed[j.EntityID]++
	return nil
}

func (mr *mockRecomputer) setError(entityID string, err error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.errors[entityID] = err
}

func (mr *mockRecomputer) processedCount(entityID string) int {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.processed[entityID]
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		q := newMockQueue()
		rc := newMockRecomputer()

		convey.Convey("When creating a worker with default options", func() {
			w := worker.NewInMemoryWorker(q, rc)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, rc, worker.WithName("test-worker"))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, rc)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)

			// Give worker time to start
			time.Sleep(10 * time.Millisecond)

			convey.Convey("And when processing jobs", func() {
				q.addJob(queue.Job{
					ID:         "job-1",
					EntityID:   "acct-1",
					EntityType: model.EntityAccount,
					Trigger:    "event",
					EnqueuedAt: time.Now(),
				})

				// Give worker time to process
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the recomputer should run once", func() {
					convey.So(rc.processedCount("acct-1"), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when recompute fails", func() {
				rc.setError("acct-2", errors.New("recompute error"))

				q.addJob(queue.Job{
					ID:         "job-2",
					EntityID:   "acct-2",
					EntityType: model.EntityAccount,
					Trigger:    "event",
					EnqueuedAt: time.Now(),
				})

				// Give worker time to process
				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the failure should not stop the worker", func() {
					convey.So(rc.processedCount("acct-2"), convey.ShouldEqual, 0)

					q.addJob(queue.Job{
						ID:         "job-3",
						EntityID:   "acct-3",
						EntityType: model.EntityAccount,
						Trigger:    "event",
						EnqueuedAt: time.Now(),
					})
					time.Sleep(50 * time.Millisecond)
					convey.So(rc.processedCount("acct-3"), convey.ShouldEqual, 1)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue channel is closed", func() {
			w := worker.NewInMemoryWorker(q, rc)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go w.Run(ctx)
			time.Sleep(10 * time.Millisecond)

			_ = q.Close()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then shutdown should return promptly", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		q := newMockQueue()
		rc := newMockRecomputer()

		convey.Convey("When creating a pool with default count", func() {
			pool := worker.NewPool(0, q, rc)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When starting a worker pool", func() {
			pool := worker.NewPool(2, q, rc)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			// Give workers time to start
			time.Sleep(20 * time.Millisecond)

			convey.Convey("And when processing multiple jobs", func() {
				jobs := []queue.Job{
					{ID: "job-1", EntityID: "acct-1", EntityType: model.EntityAccount, Trigger: "batch"},
					{ID: "job-2", EntityID: "stk-1", EntityType: model.EntityStakeholder, Trigger: "batch"},
					{ID: "job-3", EntityID: "deal-1", EntityType: model.EntityDeal, Trigger: "batch"},
				}
				for _, j := range jobs {
					q.addJob(j)
				}

				// Give workers time to process
				time.Sleep(100 * time.Millisecond)

				convey.Convey("Then all jobs should be processed", func() {
					for _, j := range jobs {
						convey.So(rc.processedCount(j.EntityID), convey.ShouldEqual, 1)
					}
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer shutdownCancel()

				err := pool.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})
	})
}

func TestWorkerConcurrency(t *testing.T) {
	convey.Convey("Given a worker pool with multiple workers", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		q := &mockQueue{jobChan: make(chan queue.Job, 200)}
		rc := newMockRecomputer()

		pool := worker.NewPool(4, q, rc)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool.Start(ctx)

		// Give workers time to start
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When processing many concurrent jobs", func() {
			const jobCount = 100
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producerID int) {
					defer wg.Done()
					for j := 0; j < jobCount/5; j++ {
						q.addJob(queue.Job{
							ID:         fmt.Sprintf("job-%d-%d", producerID, j),
							EntityID:   fmt.Sprintf("acct-%d-%d", producerID, j),
							EntityType: model.EntityAccount,
							Trigger:    "batch",
						})
					}
				}(i)
			}
			wg.Wait()

			// Give workers time to process
			time.Sleep(200 * time.Millisecond)

			convey.Convey("Then all jobs should be processed exactly once", func() {
				processedCount := 0
				for i := 0; i < 5; i++ {
					for j := 0; j < jobCount/5; j++ {
						processedCount += rc.processedCount(fmt.Sprintf("acct-%d-%d", i, j))
					}
				}
				convey.So(processedCount, convey.ShouldEqual, jobCount)
			})
		})
	})
}
