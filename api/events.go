package api

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"orbit-api/domain"
)

// The digest queue is advisory: a dropped event costs a stale activity
// digest, never data. Handlers therefore hand events to a bounded
// worker pool and move on.

type emitJob struct {
	userID string
	events []domain.ItemEvent
}

var (
	once        sync.Once
	jobs        chan emitJob
	workerCount int
	jobBuf      int
	emitTimeout time.Duration
	bg          = context.Background()
	globalSink  EventSink
	globalLog   *log.Logger
	workerWG    sync.WaitGroup
)

// shutdownEventEmitter stops worker goroutines and clears shared state.
// It is intended for tests.
func shutdownEventEmitter() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalSink = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	emitTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

func initEventEmitter(sink EventSink, logger *log.Logger) {
	once.Do(func() {
		globalSink = sink
		if logger == nil {
			panic("Logger is not initialized")
		}
		globalLog = logger

		workerCount = envInt("EVENT_WORKERS", 8)
		jobBuf = envInt("EVENT_BUFFER", 1024)
		emitTimeout = envDur("EVENT_TIMEOUT", 30*time.Second)

		jobs = make(chan emitJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go emitWorker(i, jobs)
		}
		globalLog.Infof("event emitter started, workers: %d, buffer: %d, timeout: %v", workerCount, jobBuf, emitTimeout)
	})
}

func emitWorker(id int, jobCh <-chan emitJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, emitTimeout)
		err := globalSink.EnqueueEvents(ctx, j.userID, j.events)
		cancel()
		if err != nil {
			globalLog.Errorf("event emit failed, err: %v, user: %s, count: %d, worker: %d", err, j.userID, len(j.events), id)
		}
	}
}

// emitItemEvents hands the events to the pool. When the buffer is
// saturated the events are dropped with a warning.
func emitItemEvents(userID string, events ...domain.ItemEvent) {
	if jobs == nil || len(events) == 0 {
		return
	}
	for i := range events {
		events[i].Timestamp = nextTimestamp()
	}
	job := emitJob{userID: userID, events: events}
	if ok, closed := trySendNonBlocking(jobs, job); closed || !ok {
		if globalLog != nil {
			globalLog.Warnf("event buffer saturated, dropping %d events for user %s", len(events), userID)
		}
	}
}

func trySendNonBlocking(ch chan emitJob, job emitJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func envInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDur(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
