package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/refdata-portal/authz"
	"github.com/upb/refdata-portal/middleware"
	"github.com/upb/refdata-portal/models"
	"github.com/upb/refdata-portal/repositories"
	"github.com/upb/refdata-portal/services"
	"go.uber.org/zap"
)

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo     repositories.AuditRepository
	logger        *zap.Logger
	eventChan     chan *AuditEvent
	workerCount   int
	bufferSize    int
	recordGranted bool
	wg            sync.WaitGroup
	started       bool
	dropped       uint64
	mu            sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize    int  // Size of the event buffer channel
	WorkerCount   int  // Number of concurrent workers
	RecordGranted bool // Persist successful authorizations as well as denials
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 4,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	return &AuditService{
		auditRepo:     auditRepo,
		logger:        logger,
		eventChan:     make(chan *AuditEvent, config.BufferSize),
		workerCount:   config.WorkerCount,
		bufferSize:    config.BufferSize,
		recordGranted: config.RecordGranted,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}
	if s.eventChan == nil {
		return fmt.Errorf("audit service already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i, s.eventChan)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop closes the queue and waits for pending events to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.started = false
	pending := len(s.eventChan)
	close(s.eventChan)
	s.eventChan = nil
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. A full buffer drops the event.
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped++
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)),
			zap.String("request_id", event.Log.RequestID))
		return fmt.Errorf("audit event buffer full")
	}
}

func (s *AuditService) worker(id int, events <-chan *AuditEvent) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range events {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)),
				zap.String("request_id", event.Log.RequestID))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Dropped       uint64
	Started       bool
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped,
		Started:       s.started,
	}
}

var outcomeActions = map[authz.Outcome]struct {
	action models.AuditAction
	status int
}{
	authz.OutcomeAuthorized:      {models.AuditActionGranted, http.StatusOK},
	authz.OutcomeUnauthenticated: {models.AuditActionUnauthenticated, http.StatusUnauthorized},
	authz.OutcomeForbidden:       {models.AuditActionForbidden, http.StatusForbidden},
	authz.OutcomeHandlerError:    {models.AuditActionHandlerError, http.StatusInternalServerError},
}

// RecordDecision queues a guard decision. Grants are kept only when configured.
func (s *AuditService) RecordDecision(_ context.Context, d middleware.Decision) {
	if d.Outcome == authz.OutcomeAuthorized && !s.recordGranted {
		return
	}
	mapping, ok := outcomeActions[d.Outcome]
	if !ok {
		return
	}

	log := models.NewAuditLog(mapping.action, "route", d.Path).
		WithRequest(d.RequestID, d.IPAddress, d.UserAgent).
		WithDetails(map[string]string{
			"method": d.Method,
			"check":  d.Check,
		})
	if d.Principal != nil {
		log.WithActor(d.Principal.ID, string(d.Principal.Role))
	}
	if d.Err != nil {
		log.WithError(mapping.status, d.Err.Error())
	} else {
		log.WithStatus(mapping.status)
	}

	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil {
		s.logger.Debug("authorization decision not audited",
			zap.String("request_id", d.RequestID),
			zap.String("outcome", d.Outcome.String()),
			zap.Error(err))
	}
}

// LogUserCreated logs a user creation event
func (s *AuditService) LogUserCreated(actor *authz.Principal, user *models.User) error {
	log := models.NewAuditLog(models.AuditActionUserCreated, "user", user.ID.String()).
		WithDetails(map[string]interface{}{
			"email": user.Email,
			"role":  user.Role,
		})
	if actor != nil {
		log.WithActor(actor.ID, string(actor.Role))
	}
	return s.LogEvent(&AuditEvent{Log: log})
}

// LogRoleChanged logs a role change on a user
func (s *AuditService) LogRoleChanged(actor *authz.Principal, user *models.User, from authz.Role) error {
	log := models.NewAuditLog(models.AuditActionUserRoleChanged, "user", user.ID.String()).
		WithDetails(map[string]interface{}{
			"from": from,
			"to":   user.Role,
		})
	if actor != nil {
		log.WithActor(actor.ID, string(actor.Role))
	}
	return s.LogEvent(&AuditEvent{Log: log})
}

// ListLogs returns stored audit entries newest first
func (s *AuditService) ListLogs(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	logs, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list audit logs", err)
	}
	return logs, nil
}

// GetLog returns one stored audit entry
func (s *AuditService) GetLog(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	log, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrAuditLogNotFound
		}
		return nil, services.WrapInternal("failed to get audit log", err)
	}
	return log, nil
}
