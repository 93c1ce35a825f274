package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/arcade/pkg/logger"
)

type submitRequest struct {
	SessionID    string    `json:"sessionId"`
	GameID       string    `json:"gameId,omitempty"`
	ActivityType string    `json:"activityType"`
	StartTime    time.Time `json:"startTime"`
}

type finalizeRequest struct {
	EndTime time.Time `json:"endTime"`
}

// submitSessions submits and finalizes sessions concurrently using a worker
// pool. Each session's id is written back into sessions.
func submitSessions(ctx context.Context, config *Config, client *HTTPClient, sessions []Session, stats *Stats) {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "submitting sessions", logger.Int("sessions", len(sessions)), logger.Int("workers", config.Workers))

	var submitted, submitFailed, finalized, pruned, finalizeFailed int64

	// Progress reporting
	var lastReport atomic.Int64
	reportInterval := time.Second

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				if ctx.Err() != nil {
					return
				}
				s := &sessions[index]

				id, err := submitSingleSession(ctx, client, *s)
				if err != nil {
					atomic.AddInt64(&submitFailed, 1)
					if config.Verbose {
						log.Warn(ctx, "submit failed", logger.String("session", s.SessionID), logger.Error(err))
					}
					continue
				}
				s.ID = id
				atomic.AddInt64(&submitted, 1)

				kept, err := finalizeSingleSession(ctx, client, *s)
				switch {
				case err != nil:
					atomic.AddInt64(&finalizeFailed, 1)
					if config.Verbose {
						log.Warn(ctx, "finalize failed", logger.String("id", id), logger.Error(err))
					}
				case kept:
					atomic.AddInt64(&finalized, 1)
				default:
					atomic.AddInt64(&pruned, 1)
				}

				if now := time.Now().UnixNano(); now-lastReport.Load() >= int64(reportInterval) {
					lastReport.Store(now)
					log.Info(ctx, "progress",
						logger.Int64("submitted", atomic.LoadInt64(&submitted)),
						logger.Int("total", len(sessions)),
						logger.Int64("pruned", atomic.LoadInt64(&pruned)))
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := range sessions {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()
	wg.Wait()

	stats.Submitted = int(submitted)
	stats.SubmitFailed = int(submitFailed)
	stats.Finalized = int(finalized)
	stats.FinalizePruned = int(pruned)
	stats.FinalizeFailed = int(finalizeFailed)

	log.Info(ctx, "session submission completed",
		logger.Int("submitted", stats.Submitted),
		logger.Int("submitFailed", stats.SubmitFailed),
		logger.Int("finalized", stats.Finalized),
		logger.Int("pruned", stats.FinalizePruned),
		logger.Int("finalizeFailed", stats.FinalizeFailed))
}

// submitSingleSession posts the session start and returns the event id.
func submitSingleSession(ctx context.Context, client *HTTPClient, s Session) (string, error) {
	var ack struct {
		ID string `json:"id"`
	}
	req := submitRequest{SessionID: s.SessionID, GameID: s.GameID, ActivityType: s.ActivityType, StartTime: s.StartTime}
	if err := client.expect(ctx, http.StatusAccepted, http.MethodPost, "/analytics", req, &ack); err != nil {
		return "", err
	}
	if ack.ID == "" {
		return "", fmt.Errorf("submit %s: empty id", s.SessionID)
	}
	return ack.ID, nil
}

// finalizeSingleSession ends the session and reports whether it was kept.
func finalizeSingleSession(ctx context.Context, client *HTTPClient, s Session) (bool, error) {
	code, env, err := client.Do(ctx, http.MethodPost, "/analytics/"+s.ID+"/end", finalizeRequest{EndTime: s.EndTime()})
	if err != nil {
		return false, err
	}
	if code != http.StatusOK {
		return false, fmt.Errorf("finalize %s: status %d", s.ID, code)
	}
	return len(env.Data) > 0 && string(env.Data) != "null", nil
}
