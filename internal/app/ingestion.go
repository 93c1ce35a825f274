package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/arcade/internal/adapters/cache"
	"github.com/okian/arcade/internal/adapters/mq/queue"
	"github.com/okian/arcade/internal/adapters/mq/worker"
	"github.com/okian/arcade/internal/adapters/repository"
	"github.com/okian/arcade/internal/domain/apperr"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
	"github.com/okian/arcade/internal/domain/usage"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

// JobKindUsage is the job kind carrying a model.UsageEvent.
const JobKindUsage = "usage.insert"

// Submit validates sub and queues it for persistence. It returns the id the
// event will be stored under; nothing is written before it returns.
func (s *Service) Submit(ctx context.Context, sub usage.Submission) (string, error) {
	const op = "service.Submit"

	if err := sub.Validate(); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", apperr.WrapKind(op, apperr.KindInternal, err)
	}
	e := sub.Event(id.String(), s.now())

	job, err := queue.NewJob(e.ID, JobKindUsage, e)
	if err != nil {
		return "", apperr.WrapKind(op, apperr.KindInternal, err)
	}

	s.pendingMu.Lock()
	s.pending[e.ID] = e
	s.pendingMu.Unlock()

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.forgetPending(e.ID)
		s.log.Error(ctx, "enqueue failed", logger.String("event_id", e.ID), logger.Error(err))
		return "", apperr.WrapKind(op, apperr.KindInternal, fmt.Errorf("queue event: %w", err))
	}

	s.accepted.Add(1)
	metrics.RecordEventAccepted()
	return e.ID, nil
}

// process is the worker entry point.
func (s *Service) process(ctx context.Context, j queue.Job) error {
	switch j.Kind {
	case JobKindUsage:
		var e model.UsageEvent
		if err := j.Decode(&e); err != nil {
			return worker.Permanent(fmt.Errorf("decode usage event %s: %w", j.ID, err))
		}
		if e.ID == "" {
			e.ID = j.ID
		}
		return s.persist(ctx, e)
	default:
		return worker.Permanent(fmt.Errorf("unknown job kind %q", j.Kind))
	}
}

// persist stores e idempotently and applies the pruning rule when e is
// already finished. Safe to call more than once for the same event.
func (s *Service) persist(ctx context.Context, e model.UsageEvent) error {
	inserted, err := s.usage.Insert(ctx, e)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindBadRequest {
			s.forgetPending(e.ID)
			return worker.Permanent(err)
		}
		return err
	}
	if !inserted {
		metrics.RecordEventDuplicate()
		s.forgetPending(e.ID)
		return nil
	}
	s.persisted.Add(1)
	metrics.RecordEventPersisted()

	switch {
	case usage.ShouldPrune(e):
		res, err := s.usage.Mutate(ctx, e.ID, s.now(), func(ev *model.UsageEvent) (bool, error) {
			return usage.ShouldPrune(*ev), nil
		})
		if err != nil {
			return err
		}
		s.countOutcome(res)
	case e.EndTime != nil:
		metrics.RecordEventRetained()
	}
	s.forgetPending(e.ID)
	return nil
}

// flushPending persists an accepted event that no worker has stored yet.
func (s *Service) flushPending(ctx context.Context, id string) error {
	s.pendingMu.Lock()
	e, ok := s.pending[id]
	s.pendingMu.Unlock()
	if !ok {
		return nil
	}
	s.log.Debug(ctx, "persisting in-flight event ahead of its worker", logger.String("event_id", id))
	err := s.persist(ctx, e)
	if worker.IsPermanent(err) {
		return errors.Unwrap(err)
	}
	return err
}

// deadLettered drops an event the queue gave up on. Its in-flight copy goes
// too, so an early finalize reports it as unknown.
func (s *Service) deadLettered(ctx context.Context, j queue.Job, cause error) {
	s.forgetPending(j.ID)
	metrics.RecordErrorByComponent("service", "dead_letter")
	s.log.Error(ctx, "usage event abandoned by the queue",
		logger.String("event_id", j.ID),
		logger.Int("attempts", j.Attempts),
		logger.Error(cause),
	)
}

func (s *Service) forgetPending(id string) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

func (s *Service) pendingLen() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

func (s *Service) countOutcome(res repository.MutateResult) {
	switch {
	case res.Pruned:
		s.pruned.Add(1)
		metrics.RecordEventPruned()
	case res.Event != nil && res.Event.EndTime != nil:
		metrics.RecordEventRetained()
	}
}

// Finalize sets the end time of an event and applies the pruning rule. It
// returns nil without error when the event was pruned, now or earlier.
func (s *Service) Finalize(ctx context.Context, id string, end time.Time, sessionCount *int) (*model.UsageEvent, error) {
	return s.UpdateUsage(ctx, id, model.UsagePatch{EndTime: &end, SessionCount: sessionCount})
}

// UpdateUsage applies patch. When the end time, session count or game
// changes, the pruning rule is evaluated in the same transaction.
func (s *Service) UpdateUsage(ctx context.Context, id string, patch model.UsagePatch) (*model.UsageEvent, error) {
	const op = "service.UpdateUsage"

	if err := s.flushPending(ctx, id); err != nil {
		return nil, apperr.Wrap(op, err)
	}

	now := s.now()
	res, err := s.usage.Mutate(ctx, id, now, func(e *model.UsageEvent) (bool, error) {
		recheck, err := usage.Apply(e, patch, now)
		if err != nil {
			return false, err
		}
		return recheck && usage.ShouldPrune(*e), nil
	})
	if err != nil {
		return nil, err
	}
	if res.Gone {
		return nil, nil
	}

	s.countOutcome(res)
	s.invalidate(ctx, cache.NamespaceAnalytics)
	if res.Pruned {
		s.log.Debug(ctx, "short game session pruned", logger.String("event_id", id))
	}
	return res.Event, nil
}

// DeleteUsage removes an event.
func (s *Service) DeleteUsage(ctx context.Context, id string) error {
	const op = "service.DeleteUsage"
	if err := s.flushPending(ctx, id); err != nil {
		return apperr.Wrap(op, err)
	}
	if err := s.usage.Delete(ctx, id, s.now()); err != nil {
		return err
	}
	s.invalidate(ctx, cache.NamespaceAnalytics)
	return nil
}

// GetUsage returns one persisted event.
func (s *Service) GetUsage(ctx context.Context, id string) (*model.UsageEvent, error) {
	return s.usage.Get(ctx, id)
}

// ListUsage returns a page of events, through the cache.
func (s *Service) ListUsage(ctx context.Context, f model.UsageFilter) (types.Page[model.UsageEvent], error) {
	f.Page, f.Limit = s.page(f.Page, f.Limit)
	key := usageKey("list", f, true)
	return cache.Remember(ctx, s.cache, cache.NamespaceAnalytics, key, func(ctx context.Context) (types.Page[model.UsageEvent], error) {
		return s.usage.List(ctx, f)
	})
}

// UsageStats aggregates events, through the cache.
func (s *Service) UsageStats(ctx context.Context, f model.UsageFilter) (types.UsageStats, error) {
	key := usageKey("stats", f, false)
	return cache.Remember(ctx, s.cache, cache.NamespaceAnalytics, key, func(ctx context.Context) (types.UsageStats, error) {
		return s.usage.Stats(ctx, f)
	})
}

func usageKey(view string, f model.UsageFilter, paged bool) string {
	params := map[string]string{
		"view":         view,
		"userId":       f.UserID,
		"sessionId":    f.SessionID,
		"gameId":       f.GameID,
		"activityType": string(f.ActivityType),
		"from":         timeParam(f.From),
		"to":           timeParam(f.To),
	}
	if paged {
		params["page"] = strconv.Itoa(f.Page)
		params["limit"] = strconv.Itoa(f.Limit)
	}
	return cache.Key(cache.NamespaceAnalytics, params)
}

func timeParam(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}
