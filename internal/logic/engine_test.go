package logic

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"semaphore/internal/adapter"
	"semaphore/internal/clients"
	"semaphore/internal/executor"
	"semaphore/internal/planner"
	"semaphore/internal/platform"
	"semaphore/internal/ratelimit"
	"semaphore/internal/trigger"
	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

type memStore struct {
	mu         sync.Mutex
	accounts   map[string]models.Account
	tasks      []models.Task
	statuses   map[string]string
	executions []models.ExecutionRecord
}

func newMemStore(accounts ...models.Account) *memStore {
	m := &memStore{accounts: make(map[string]models.Account), statuses: make(map[string]string)}
	for _, acc := range accounts {
		m.accounts[acc.ID] = acc
	}
	return m
}

func (m *memStore) GetAccounts(ctx context.Context, ids []string) (map[string]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Account)
	for _, id := range ids {
		if acc, ok := m.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (m *memStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Task(nil), m.tasks...), nil
}

func (m *memStore) SetTaskStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

func (m *memStore) RecordExecution(ctx context.Context, record *models.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = "exec-1"
	m.executions = append(m.executions, *record)
	return nil
}

type stubClient struct {
	mu    sync.Mutex
	fail  map[string]string
	calls []clients.Payload
}

func (s *stubClient) Publish(ctx context.Context, payload clients.Payload) (*clients.PublishResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, payload)
	s.mu.Unlock()
	if msg, ok := s.fail[payload.AccountID]; ok {
		return nil, &clients.PlatformError{Platform: payload.Platform, Code: "500", Message: msg}
	}
	return &clients.PublishResult{PostID: "post-" + payload.AccountID}, nil
}

type stubProvider struct{ client *stubClient }

func (s *stubProvider) ClientFor(platformID platform.ID, accountID string) (clients.PlatformClient, error) {
	return s.client, nil
}

type nopScheduleStore struct{}

func (nopScheduleStore) CreateScheduledJob(ctx context.Context, job *models.ScheduledJob) error {
	return nil
}
func (nopScheduleStore) ClaimDueJob(ctx context.Context, jobID string) (bool, error) {
	return false, nil
}
func (nopScheduleStore) CompleteScheduledJob(ctx context.Context, jobID, postID, url string) error {
	return nil
}
func (nopScheduleStore) FailScheduledJob(ctx context.Context, jobID, errMsg string) error { return nil }
func (nopScheduleStore) CancelScheduledJob(ctx context.Context, jobID string) error       { return nil }
func (nopScheduleStore) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	return nil, nil
}

type stubEventSource struct{}

func (stubEventSource) FetchSince(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error) {
	return nil, nil
}

type memCursors struct{}

func (memCursors) GetCursor(ctx context.Context, taskID, accountID string) (trigger.Cursor, error) {
	return trigger.Cursor{}, nil
}
func (memCursors) PutCursor(ctx context.Context, taskID, accountID string, cursor trigger.Cursor) error {
	return nil
}

func account(id, plat, handle string) models.Account {
	return models.Account{ID: id, Platform: plat, Handle: handle, IsActive: true}
}

func newTestEngine(store *memStore, client *stubClient) *Engine {
	logger := logging.NewLogger()
	p := planner.New(adapter.New(platform.NewRegistry()))
	limiter := ratelimit.New(nil, 0, 0, logger)
	coordinator := executor.NewCoordinator(&stubProvider{client: client}, nopScheduleStore{}, limiter, nil, logger, nil)
	return NewEngine(store, p, coordinator, stubEventSource{}, memCursors{}, logger)
}

func TestPublishToMultipleAccounts(t *testing.T) {
	store := newMemStore(
		account("acc-1", "twitter", "alice"),
		account("acc-2", "mastodon", "alice@masto"),
	)
	client := &stubClient{}
	engine := newTestEngine(store, client)

	resp, err := engine.Publish(context.Background(), "req-1", models.PublishRequest{
		Message:          "hello world",
		TargetAccountIDs: []string{"acc-1", "acc-2"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !resp.Success || resp.PartialSuccess {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.SucceededCount != 2 || resp.FailedCount != 0 {
		t.Fatalf("counts = %d/%d", resp.SucceededCount, resp.FailedCount)
	}
	if len(resp.Results) != 2 || resp.Results[0].AccountID != "acc-1" {
		t.Fatalf("results = %+v", resp.Results)
	}
	if len(client.calls) != 2 {
		t.Fatalf("client calls = %d, want 2", len(client.calls))
	}
}

func TestPublishPersistsOutcomeByRequestID(t *testing.T) {
	store := newMemStore(account("acc-1", "twitter", "alice"))
	engine := newTestEngine(store, &stubClient{})

	if _, err := engine.Publish(context.Background(), "req-55", models.PublishRequest{
		Message:          "hello",
		TargetAccountIDs: []string{"acc-1"},
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(store.executions) != 1 {
		t.Fatalf("executions = %d, want 1", len(store.executions))
	}
	record := store.executions[0]
	if record.RequestID != "req-55" || record.TaskID != "" {
		t.Fatalf("record = %+v", record)
	}
	if record.OverallStatus != models.StatusSuccess || record.Succeeded != 1 {
		t.Fatalf("record = %+v", record)
	}
}

func TestPublishUnknownAccountFailsThatTargetOnly(t *testing.T) {
	store := newMemStore(account("acc-1", "twitter", "alice"))
	engine := newTestEngine(store, &stubClient{})

	resp, err := engine.Publish(context.Background(), "req-1", models.PublishRequest{
		Message:          "hello",
		TargetAccountIDs: []string{"acc-1", "ghost"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !resp.PartialSuccess {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[1].Error != "account not found" {
		t.Fatalf("results[1] = %+v", resp.Results[1])
	}
	if len(resp.Validation[1].Issues) != 1 {
		t.Fatalf("validation[1] = %+v", resp.Validation[1])
	}
}

func TestPublishInactiveAccountIsRejected(t *testing.T) {
	inactive := account("acc-1", "twitter", "alice")
	inactive.IsActive = false
	store := newMemStore(inactive)
	engine := newTestEngine(store, &stubClient{})

	resp, err := engine.Publish(context.Background(), "req-1", models.PublishRequest{
		Message:          "hello",
		TargetAccountIDs: []string{"acc-1"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if resp.Success || resp.Results[0].Error != "account is inactive" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestPublishExcludesOverflowingTarget(t *testing.T) {
	store := newMemStore(
		account("acc-1", "twitter", "alice"),
		account("acc-2", "mastodon", "alice@masto"),
	)
	client := &stubClient{}
	engine := newTestEngine(store, client)

	// 300 characters: over twitter's 280, within mastodon's 500.
	resp, err := engine.Publish(context.Background(), "req-1", models.PublishRequest{
		Message:          strings.Repeat("x", 300),
		TargetAccountIDs: []string{"acc-1", "acc-2"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !resp.PartialSuccess || resp.SucceededCount != 1 || resp.FailedCount != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[0].Success {
		t.Fatalf("overflowing target dispatched: %+v", resp.Results[0])
	}
	if len(client.calls) != 1 || client.calls[0].AccountID != "acc-2" {
		t.Fatalf("client calls = %+v", client.calls)
	}
}

func TestPublishScheduleRequiresTimestamp(t *testing.T) {
	engine := newTestEngine(newMemStore(account("acc-1", "twitter", "alice")), &stubClient{})

	_, err := engine.Publish(context.Background(), "req-1", models.PublishRequest{
		Message:          "hello",
		Mode:             "schedule",
		TargetAccountIDs: []string{"acc-1"},
	})
	if err == nil {
		t.Fatalf("expected error for schedule without scheduledAt")
	}
}

func TestFireTaskRecordsExecution(t *testing.T) {
	store := newMemStore(
		account("acc-1", "twitter", "alice"),
		account("acc-2", "mastodon", "alice@masto"),
	)
	client := &stubClient{}
	engine := newTestEngine(store, client)

	task := &models.Task{
		ID:             "task-1",
		TargetAccounts: []string{"acc-1", "acc-2"},
		Transformations: models.Transformations{
			IncludeSource: true,
			AddHashtags:   []string{"news"},
		},
	}
	ev := trigger.Event{
		ID:       "ev-1",
		Kind:     trigger.KindPost,
		Username: "alice",
		Name:     "Alice",
		Text:     "fresh post",
	}

	if err := engine.FireTask(context.Background(), task, ev); err != nil {
		t.Fatalf("FireTask: %v", err)
	}
	if len(store.executions) != 1 {
		t.Fatalf("executions = %d, want 1", len(store.executions))
	}
	record := store.executions[0]
	if record.TaskID != "task-1" || record.OverallStatus != models.StatusSuccess {
		t.Fatalf("record = %+v", record)
	}
	if record.Succeeded != 2 {
		t.Fatalf("record.Succeeded = %d, want 2", record.Succeeded)
	}
	if len(client.calls) != 2 {
		t.Fatalf("client calls = %d, want 2", len(client.calls))
	}
	if !strings.Contains(client.calls[0].Message, "#news") || !strings.Contains(client.calls[0].Message, "via @alice") {
		t.Fatalf("message = %q", client.calls[0].Message)
	}
}

func TestFireTaskCarriesMediaAndSourceEvent(t *testing.T) {
	store := newMemStore(account("acc-1", "instagram", "pics"))
	client := &stubClient{}
	engine := newTestEngine(store, client)

	task := &models.Task{
		ID:             "task-1",
		TargetAccounts: []string{"acc-1"},
		Transformations: models.Transformations{
			IncludeMedia: true,
		},
	}
	ev := trigger.Event{
		ID:       "ev-7",
		Kind:     trigger.KindPost,
		Username: "alice",
		Text:     "look at this",
		MediaURL: "https://cdn.example.com/pic.jpg",
	}

	if err := engine.FireTask(context.Background(), task, ev); err != nil {
		t.Fatalf("FireTask: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("client calls = %d, want 1", len(client.calls))
	}
	payload := client.calls[0]
	if payload.MediaURL != ev.MediaURL || payload.MediaKind != platform.MediaImage {
		t.Fatalf("payload media = %q %q", payload.MediaURL, payload.MediaKind)
	}
	if payload.RefEventID != "ev-7" {
		t.Fatalf("payload.RefEventID = %q, want ev-7", payload.RefEventID)
	}
}

func TestFireTaskExpandsActions(t *testing.T) {
	store := newMemStore(account("acc-1", "twitter", "alice"))
	client := &stubClient{}
	engine := newTestEngine(store, client)

	task := &models.Task{
		ID:             "task-1",
		TargetAccounts: []string{"acc-1"},
		Transformations: models.Transformations{
			TwitterActions: []string{"post", "like"},
		},
	}

	if err := engine.FireTask(context.Background(), task, trigger.Event{ID: "ev-1", Text: "hi"}); err != nil {
		t.Fatalf("FireTask: %v", err)
	}
	if len(client.calls) != 2 {
		t.Fatalf("client calls = %d, want 2", len(client.calls))
	}
	actions := map[platform.Action]bool{}
	for _, call := range client.calls {
		actions[call.Action] = true
	}
	if !actions[platform.ActionPost] || !actions[platform.ActionLike] {
		t.Fatalf("actions = %v", actions)
	}
}

func TestTaskLifecycle(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubClient{})

	task := &models.Task{
		ID:             "task-1",
		SourceAccounts: []string{"src-1", "src-2"},
		TargetAccounts: []string{"acc-1"},
		Status:         models.TaskStatusActive,
		Filters:        models.TaskFilters{TriggerType: "on_tweet", PollIntervalSeconds: 60},
	}

	engine.TaskStarted(task)
	if running := engine.RunningTasks(); len(running) != 1 || running[0] != "task-1" {
		t.Fatalf("running = %v", running)
	}

	// Starting again is a no-op.
	engine.TaskStarted(task)
	if running := engine.RunningTasks(); len(running) != 1 {
		t.Fatalf("running = %v", running)
	}

	engine.TaskStopped("task-1")
	if running := engine.RunningTasks(); len(running) != 0 {
		t.Fatalf("running = %v", running)
	}
	// Stopping again is a no-op too.
	engine.TaskStopped("task-1")
}

func TestDisableTaskMarksError(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store, &stubClient{})

	task := &models.Task{
		ID:             "task-1",
		SourceAccounts: []string{"src-1"},
		Status:         models.TaskStatusActive,
		Filters:        models.TaskFilters{TriggerType: "on_tweet"},
	}
	engine.TaskStarted(task)
	engine.disableTask("task-1")

	if store.statuses["task-1"] != models.TaskStatusError {
		t.Fatalf("status = %q, want error", store.statuses["task-1"])
	}
	if len(engine.RunningTasks()) != 0 {
		t.Fatalf("poll loops still running after disable")
	}
}
