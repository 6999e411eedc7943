package service

import (
	"context"
	"encoding/json"
	"time"

	"workload/internal/database"
	"workload/internal/events"
)

// AttemptStore persists save attempts.
type AttemptStore interface {
	RecordSaveAttempt(ctx context.Context, a *database.SaveAttempt) error
}

// AuditRecorder returns an event handler that logs every save outcome.
func AuditRecorder(store AttemptStore) events.EventHandler {
	return func(ev events.Event) error {
		var out events.SaveOutcome
		if err := ev.Decode(&out); err != nil {
			return err
		}

		status := database.StatusSaved
		switch ev.Type {
		case events.DetailsSaveFailed, events.ProfileSaveFailed:
			status = database.StatusFailed
		}

		var payload string
		if out.Body != nil {
			data, err := json.Marshal(out.Body)
			if err != nil {
				return err
			}
			payload = string(data)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.RecordSaveAttempt(ctx, &database.SaveAttempt{
			ID:         ev.ID,
			EmployeeID: out.EmployeeID,
			Form:       out.Form,
			Status:     status,
			Error:      out.Error,
			Payload:    payload,
			CreatedAt:  ev.CreatedAt,
		})
	}
}
