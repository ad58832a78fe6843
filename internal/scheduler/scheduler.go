// Package scheduler runs configured prompts on cron schedules and posts the
// answers to chats.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ebrain-io/ebrain/pkg/protocol"
)

// Job is a recurring prompt. Spec is a standard 5-field cron expression or
// a descriptor such as @daily or @every 1h.
type Job struct {
	Name    string
	Spec    string
	Prompt  string
	Channel string
	ChatID  string
}

// Asker answers a conversation. *agent.Boundary implements it.
type Asker interface {
	Ask(ctx context.Context, turns []protocol.Turn) protocol.Reply
}

// Deliverer posts text to a chat. *connector.Router implements it.
type Deliverer interface {
	Deliver(ctx context.Context, channel, chatID, content string) error
}

// Entry describes a registered job.
type Entry struct {
	Job
	Next time.Time
	Prev time.Time
}

// Scheduler manages cron-based report jobs.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]registered
	asker   Asker
	out     Deliverer
	logger  *slog.Logger
	runCtx  context.Context
	timeout time.Duration
}

type registered struct {
	job Job
	id  cron.EntryID
}

// New creates a new scheduler. A run that is still going when its schedule
// fires again is skipped.
func New(asker Asker, out Deliverer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:    make(map[string]registered),
		asker:   asker,
		out:     out,
		logger:  logger,
		runCtx:  context.Background(),
		timeout: 5 * time.Minute,
	}
}

// Start begins the cron scheduler. Blocks until context is cancelled, then
// waits for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Len())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// Add registers a job. Names are unique.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if err := s.Run(ctx, job); err != nil {
			s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", job.Spec, job.Name, err)
	}

	s.jobs[job.Name] = registered{job: job, id: id}
	s.logger.Info("job registered", "job", job.Name, "schedule", job.Spec, "channel", job.Channel)
	return nil
}

// Remove unregisters a job by name. It reports whether the job existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.jobs[name]
	if !ok {
		return false
	}
	s.cron.Remove(r.id)
	delete(s.jobs, name)
	return true
}

// Entries returns the registered jobs sorted by name, with their next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.jobs))
	for _, r := range s.jobs {
		e := s.cron.Entry(r.id)
		next := e.Next
		// The cron only computes Next once started.
		if next.IsZero() && e.Schedule != nil {
			next = e.Schedule.Next(time.Now())
		}
		out = append(out, Entry{Job: r.job, Next: next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run asks the job's prompt once and delivers the answer. A failed answer
// is delivered as a short notice so the chat learns the report is missing.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply := s.asker.Ask(ctx, []protocol.Turn{{
		Role:      protocol.RoleUser,
		Content:   job.Prompt,
		CreatedAt: start.UTC(),
	}})

	content := reply.Text
	if reply.Failed() {
		s.logger.Warn("scheduled prompt failed", "job", job.Name, "error", reply.Error)
		content = fmt.Sprintf("Scheduled report %q failed: %s", job.Name, reply.Error)
	}
	if err := s.out.Deliver(ctx, job.Channel, job.ChatID, content); err != nil {
		return fmt.Errorf("scheduler: deliver %s: %w", job.Name, err)
	}
	s.logger.Info("scheduled job delivered",
		"job", job.Name,
		"channel", job.Channel,
		"chat_id", job.ChatID,
		"failed", reply.Failed(),
		"duration", time.Since(start),
	)
	return nil
}

// RunNamed runs a registered job immediately.
func (s *Scheduler) RunNamed(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.Run(ctx, r.job)
}
