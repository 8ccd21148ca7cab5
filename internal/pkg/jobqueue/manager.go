package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ClubDues/internal/pkg/archive"
	"github.com/ManuelReschke/ClubDues/internal/pkg/mail"
)

// Manager owns the job queue and its background tasks
type Manager struct {
	queue         *Queue
	statsTicker   *time.Ticker
	statsInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager wires the mail relay and, when archiver is non-nil, the webhook
// archive into a queue on client.
func NewManager(client *redis.Client, workers int, sender mail.Sender, archiver archive.Archiver) *Manager {
	q := NewQueue(client, workers)
	if sender != nil {
		q.Register(JobTypeSendEmail, NewSendEmailProcessor(sender))
	}
	if archiver != nil {
		q.Register(JobTypeArchiveWebhook, NewArchiveWebhookProcessor(archiver))
	}
	return &Manager{
		queue:         q,
		statsInterval: 5 * time.Minute,
		stopCh:        make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.statsTicker = time.NewTicker(m.statsInterval)
	m.wg.Add(1)
	go m.statsWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.statsTicker != nil {
		m.statsTicker.Stop()
	}

	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	m.wg.Wait()
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// statsWorker periodically logs the backlog so a stalled relay is visible
func (m *Manager) statsWorker() {
	defer m.wg.Done()
	stopCh := m.stopCh
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Stats worker stopping")
			return
		case <-m.statsTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			pending, perr := m.queue.PendingCount(ctx)
			processing, rerr := m.queue.ProcessingCount(ctx)
			cancel()
			if perr != nil || rerr != nil {
				log.Errorf("[JobQueue Manager] Stats error: pending=%v processing=%v", perr, rerr)
				continue
			}
			log.Infof("[JobQueue Manager] Backlog: %d pending, %d processing", pending, processing)
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
