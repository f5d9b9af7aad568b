package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskboard-api/domain"
)

const (
	queuePerCPU             = 10
	defaultQueueConcurrency = 10
	maxQueueConcurrency     = 64
)

// queueConcurrencyForCPU scales the enqueue fan-out with the host CPU count,
// with a floor for constrained environments and a cap to keep connection use
// bounded.
func queueConcurrencyForCPU(cpu int) int {
	if cpu < 1 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		return maxQueueConcurrency
	}
	return n
}

type messageEnqueuer interface {
	EnqueueMessage(ctx context.Context, content string) error
}

type queueEnqueuer struct {
	client *azqueue.QueueClient
}

func (q queueEnqueuer) EnqueueMessage(ctx context.Context, content string) error {
	_, err := q.client.EnqueueMessage(ctx, content, nil)
	return err
}

// PublishEvents sends the given board events to the events queue, fanning out
// up to the configured concurrency. The first enqueue failure is returned
// after all in-flight sends finish; events already enqueued stay enqueued.
func (s *Store) PublishEvents(ctx context.Context, events []domain.BoardEvent) error {
	if len(events) == 0 {
		return nil
	}

	payloads := make([]string, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		payloads[i] = string(data)
	}

	workers := s.queueConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(payloads) {
		workers = len(payloads)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, workers)
	for _, payload := range payloads {
		wg.Add(1)
		sem <- struct{}{}
		go func(content string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.events.EnqueueMessage(ctx, content); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(payload)
	}
	wg.Wait()

	if firstErr != nil {
		return &domain.StoreError{Op: "publish board event", Err: firstErr}
	}
	return nil
}
