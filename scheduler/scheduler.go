package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"price_crew/config"
	"price_crew/models"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Refresher is the watchlist refresh worker.
type Refresher interface {
	Triggerable
	TriggerScheduled()
}

type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

type Scheduler struct {
	cfg      *config.Config
	handler  CommandHandler
	commands CommandQueue
	cron     *cron.Cron
	stopCh   chan struct{}
	running  sync.WaitGroup

	healthcheckWorker Triggerable
	refreshWorker     Refresher
}

func New(cfg *config.Config, handler CommandHandler, commands CommandQueue) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		handler:  handler,
		commands: commands,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

// SetWorkers registers background workers for cron and manual triggering
func (s *Scheduler) SetWorkers(healthcheck Triggerable, refresh Refresher) {
	s.healthcheckWorker = healthcheck
	s.refreshWorker = refresh
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	scheduled := 0
	if expr := s.cfg.Healthcheck.Cron; expr != "" && s.healthcheckWorker != nil {
		log.Printf("Scheduling health check with cron: %s", expr)
		if _, err := s.cron.AddFunc(expr, s.healthcheckWorker.Trigger); err != nil {
			return fmt.Errorf("invalid HEALTHCHECK_CRON: %w", err)
		}
		scheduled++
	}
	if expr := s.cfg.Refresh.Cron; expr != "" && s.refreshWorker != nil {
		log.Printf("Scheduling watchlist refresh with cron: %s", expr)
		if _, err := s.cron.AddFunc(expr, s.refreshWorker.TriggerScheduled); err != nil {
			return fmt.Errorf("invalid REFRESH_CRON: %w", err)
		}
		scheduled++
	}

	if scheduled > 0 {
		s.cron.Start()
	} else if s.cfg.Healthcheck.Interval == 0 && s.cfg.Refresh.Interval == 0 {
		log.Println("No schedule configured, daemon will only respond to commands and API calls")
	}
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	close(s.stopCh)
	s.running.Wait()
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		log.Printf("Processing command: %s", cmd.Command)
		// Mark first so a command that crashes a long dispatch is not replayed forever.
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
		if err := s.handleCommand(ctx, &cmd); err != nil {
			log.Printf("Command error: %v", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdHealthCheck:
		if s.healthcheckWorker != nil {
			s.healthcheckWorker.Trigger()
			log.Println("Healthcheck worker triggered via command")
		}
		return nil
	case models.CmdRefresh:
		if s.refreshWorker != nil {
			s.refreshWorker.Trigger()
			log.Println("Refresh worker triggered via command")
		}
		return nil
	case models.CmdDispatch:
		// Dispatches can run for the full worker timeout; keep polling.
		dispatch := *cmd
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			if err := s.handler.HandleCommand(ctx, &dispatch); err != nil {
				log.Printf("Dispatch command %d error: %v", dispatch.ID, err)
			}
		}()
		return nil
	default:
		return s.handler.HandleCommand(ctx, cmd)
	}
}
