package tasks

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vikasavnish/signalrelay/internal/config"
)

// BotLoops is what the scheduled tasks drive
type BotLoops interface {
	Tick(ctx context.Context)
	KeepAlive(ctx context.Context)
}

// Manager handles the execution of scheduled tasks
type Manager struct {
	bots  BotLoops
	cfg   config.MailboxConfig
	tasks []Task
}

// Task represents a scheduled task that needs to be executed
type Task interface {
	Start()
	Stop()
}

// NewManager creates a new task manager
func NewManager(bots BotLoops, cfg config.MailboxConfig) *Manager {
	return &Manager{
		bots:  bots,
		cfg:   cfg,
		tasks: make([]Task, 0),
	}
}

// RegisterTask registers a task with the manager
func (m *Manager) RegisterTask(task Task) {
	m.tasks = append(m.tasks, task)
}

// StartScheduledTasks starts the polling and keep-alive loops plus any
// registered tasks
func (m *Manager) StartScheduledTasks() {
	m.RegisterTask(NewPollTask(m.bots, m.cfg.PollDelay))
	m.RegisterTask(NewKeepAliveTask(m.bots, m.cfg.KeepAliveInterval))

	// Start all registered tasks
	for _, task := range m.tasks {
		task.Start()
	}

	log.Println("Started all scheduled tasks")
}

// StopAllTasks stops all running tasks and waits for them to return
func (m *Manager) StopAllTasks() {
	for _, task := range m.tasks {
		task.Stop()
	}
	log.Println("Stopped all scheduled tasks")
}

// loop owns the goroutine of a task and its cancellation.
type loop struct {
	name string

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func (l *loop) start(run func(ctx context.Context)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.isRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.isRunning = true
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		run(ctx)
	}()
	log.Printf("%s task started", l.name)
}

func (l *loop) stop() {
	l.mu.Lock()
	if !l.isRunning {
		l.mu.Unlock()
		return
	}
	l.isRunning = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	log.Printf("%s task stopped", l.name)
}

// PollTask ticks every bot, then sleeps for a fixed delay
type PollTask struct {
	loop
	bots  BotLoops
	delay time.Duration
}

// NewPollTask creates a new polling task
func NewPollTask(bots BotLoops, delay time.Duration) *PollTask {
	if delay <= 0 {
		delay = time.Second
	}
	return &PollTask{loop: loop{name: "Mailbox poll"}, bots: bots, delay: delay}
}

// Start begins polling
func (t *PollTask) Start() {
	t.start(func(ctx context.Context) {
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			t.bots.Tick(ctx)
			timer.Reset(t.delay)
		}
	})
}

// Stop terminates polling after the current tick
func (t *PollTask) Stop() {
	t.stop()
}

// KeepAliveTask probes every mailbox connection on a fixed interval
type KeepAliveTask struct {
	loop
	bots     BotLoops
	interval time.Duration
}

// NewKeepAliveTask creates a new keep-alive task
func NewKeepAliveTask(bots BotLoops, interval time.Duration) *KeepAliveTask {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &KeepAliveTask{loop: loop{name: "Mailbox keep-alive"}, bots: bots, interval: interval}
}

// Start begins the keep-alive loop
func (t *KeepAliveTask) Start() {
	t.start(func(ctx context.Context) {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.bots.KeepAlive(ctx)
			case <-ctx.Done():
				return
			}
		}
	})
}

// Stop terminates the keep-alive loop
func (t *KeepAliveTask) Stop() {
	t.stop()
}
