package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-scraper/internal/models"
	"github.com/maltedev/catalog-scraper/internal/scraper"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobNotFinished = errors.New("job has not completed")
	ErrQueueFull      = errors.New("job queue is full")
	ErrInvalidRootURL = errors.New("invalid root url")
)

// Runner performs one crawl. *scraper.Crawler satisfies it.
type Runner interface {
	Run(ctx context.Context) (*scraper.Collection, error)
}

// RunnerFactory builds the runner for a job. jobID is a UUID and doubles as
// the crawl run ID when products are stored.
type RunnerFactory func(jobID string, req Request) Runner

// ProductStore reads back the products a run stored. *database.ProductRepository
// satisfies it.
type ProductStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Product, error)
}

// Request describes a crawl to run. Empty fields fall back to the
// process configuration.
type Request struct {
	RootURL               string `json:"root_url,omitempty"`
	MaxSubcategoryWorkers int    `json:"max_subcategory_workers,omitempty"`
}

type Job struct {
	ID            string     `json:"id"`
	RootURL       string     `json:"root_url,omitempty"`
	Status        string     `json:"status"`
	ProductsFound int        `json:"products_found"`
	Failures      int        `json:"failures"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`

	request  Request
	products []models.Product
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalProducts int     `json:"total_products"`
	SuccessRate   float64 `json:"success_rate"`
}

// Manager queues crawl jobs and runs them one at a time.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	queue   chan string
	factory RunnerFactory
	store   ProductStore
	logger  *slog.Logger
}

func NewManager(factory RunnerFactory, queueSize int, logger *slog.Logger) *Manager {
	if queueSize < 1 {
		queueSize = 16
	}
	return &Manager{
		jobs:    make(map[string]*Job),
		queue:   make(chan string, queueSize),
		factory: factory,
		logger:  logger.With("component", "job_manager"),
	}
}

// SetProductStore makes finished jobs serve their products from store
// instead of keeping them in memory.
func (m *Manager) SetProductStore(store ProductStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
}

// CreateJob registers a pending job and queues it for the worker.
func (m *Manager) CreateJob(ctx context.Context, req Request) (*Job, error) {
	if req.RootURL != "" {
		u, err := url.Parse(req.RootURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRootURL, req.RootURL)
		}
	}
	if req.MaxSubcategoryWorkers < 0 {
		return nil, fmt.Errorf("max_subcategory_workers cannot be negative")
	}

	job := &Job{
		ID:        uuid.New().String(),
		RootURL:   req.RootURL,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		request:   req,
	}

	// The worker may pick the job up as soon as it is queued, so the copy
	// handed back is taken first.
	m.mu.Lock()
	m.jobs[job.ID] = job
	created := job.snapshot()
	m.mu.Unlock()

	select {
	case m.queue <- job.ID:
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, ErrQueueFull
	}

	m.logger.Info("job created", "id", created.ID, "root_url", req.RootURL)
	return created, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// ListJobs returns all jobs, newest first.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// GetJobProducts returns the products of a completed job. With a product
// store these are the products whose latest stored crawl is this job.
func (m *Manager) GetJobProducts(ctx context.Context, jobID string) ([]models.Product, error) {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrJobNotFound
	}
	if job.Status != StatusCompleted {
		m.mu.RUnlock()
		return nil, ErrJobNotFinished
	}
	store := m.store
	products := make([]models.Product, len(job.products))
	copy(products, job.products)
	m.mu.RUnlock()

	if store == nil {
		return products, nil
	}

	runID, err := uuid.Parse(jobID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", jobID, err)
	}
	stored, err := store.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	return stored, nil
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{TotalJobs: len(m.jobs)}
	for _, job := range m.jobs {
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
		stats.TotalProducts += job.ProductsFound
	}

	if finished := stats.CompletedJobs + stats.FailedJobs; finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}

	return stats, nil
}

// StartWorker runs queued jobs until ctx is done.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case jobID := <-m.queue:
			m.processJob(ctx, jobID)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	req := job.request
	m.mu.Unlock()

	m.logger.Info("processing job", "id", jobID)

	collection, err := m.factory(jobID, req).Run(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	completed := time.Now()
	job.CompletedAt = &completed

	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		m.logger.Error("job failed", "id", jobID, "error", err)
		return
	}

	job.Status = StatusCompleted
	job.ProductsFound = collection.Len()
	job.Failures = len(collection.Failures())
	if m.store == nil {
		job.products = collection.Products()
	}

	m.logger.Info("job completed",
		"id", jobID,
		"products", job.ProductsFound,
		"failures", job.Failures,
		"duration", completed.Sub(*job.StartedAt),
	)
}

func (j *Job) snapshot() *Job {
	c := *j
	c.products = nil
	return &c
}
