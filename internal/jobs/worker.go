package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/storybook-forge/internal/pdf"
)

func (m *Manager) handleBookTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}
	return m.process(ctx, payload)
}

// process は1件のジョブを実行し、結果または失敗を記録します。
// ジョブ自体の失敗は記録済みとして nil を返し、Asynq の再試行対象にしません。
func (m *Manager) process(ctx context.Context, payload TaskPayload) error {
	if err := m.store.Upsert(ctx, &Record{
		JobID:     payload.JobID,
		Operation: string(payload.Operation),
		Status:    StatusRunning,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   pdf.StageLoad,
		},
	}); err != nil {
		return err
	}

	result, err := m.runner.RunJob(ctx, payload.JobID, func(stage string, percent int) {
		if err := m.store.UpdateProgress(ctx, payload.JobID, ProgressInfo{
			Stage:   stage,
			Percent: percent,
		}); err != nil {
			m.logger.Printf("failed to update progress job=%s: %v", payload.JobID, err)
		}
	})
	if err != nil {
		m.logger.Printf("job failed job=%s op=%s: %v", payload.JobID, payload.Operation, err)
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *pdf.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}

	downloadURL := m.buildDownloadURL(result)
	if m.publisher != nil {
		published, err := m.publisher.Publish(ctx, jobID, result.OutputFilename, result.OutputPath, "application/pdf")
		if err != nil {
			// ローカル配信にフォールバック
			m.logger.Printf("failed to publish result job=%s: %v", jobID, err)
		} else {
			downloadURL = published
		}
	}

	if err := m.store.MarkDone(ctx, jobID, downloadURL, result.Meta); err != nil {
		return err
	}
	m.logger.Printf("job done job=%s op=%s size=%d", jobID, result.Operation, result.OutputSize)
	return nil
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	})
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	var apiErr *pdf.Error
	if errors.As(err, &apiErr) {
		return m.failJob(ctx, jobID, apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return m.failJob(ctx, jobID, "REQUEST_CANCELED", "ジョブがキャンセルされました。")
	}
	return m.failJob(ctx, jobID, "INTERNAL_ERROR", "サーバー内部でエラーが発生しました。")
}

// asynqLogger は Asynq の内部ログを *log.Logger に流します。
type asynqLogger struct {
	l *log.Logger
}

func newAsynqLogger(l *log.Logger) *asynqLogger {
	return &asynqLogger{l: l}
}

func (a *asynqLogger) Debug(args ...any) {}

func (a *asynqLogger) Info(args ...any) { a.l.Print(append([]any{"asynq: "}, args...)...) }

func (a *asynqLogger) Warn(args ...any) { a.l.Print(append([]any{"asynq warn: "}, args...)...) }

func (a *asynqLogger) Error(args ...any) { a.l.Print(append([]any{"asynq error: "}, args...)...) }

func (a *asynqLogger) Fatal(args ...any) { a.l.Fatal(append([]any{"asynq fatal: "}, args...)...) }
