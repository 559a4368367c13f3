package tasks

import (
	"context"
	"strconv"
	"testing"

	"semaphore/pkg/logging"
	"semaphore/pkg/models"
)

type memTaskStore struct {
	tasks      map[string]*models.Task
	nextID     int
	executions map[string][]models.ExecutionRecord
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*models.Task), executions: make(map[string][]models.ExecutionRecord)}
}

func (m *memTaskStore) CreateTask(ctx context.Context, task *models.Task) error {
	m.nextID++
	task.ID = "task-" + strconv.Itoa(m.nextID)
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *memTaskStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, errNotFound
	}
	clone := *task
	return &clone, nil
}

func (m *memTaskStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	for _, task := range m.tasks {
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func (m *memTaskStore) UpdateTask(ctx context.Context, task *models.Task) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return errNotFound
	}
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *memTaskStore) SetTaskStatus(ctx context.Context, id, status string) error {
	task, ok := m.tasks[id]
	if !ok {
		return errNotFound
	}
	task.Status = status
	return nil
}

func (m *memTaskStore) DeleteTask(ctx context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return errNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTaskStore) ListExecutions(ctx context.Context, taskID string, limit int) ([]models.ExecutionRecord, error) {
	return m.executions[taskID], nil
}

var errNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "record not found" }

type fakeLifecycle struct {
	started []string
	stopped []string
}

func (f *fakeLifecycle) TaskStarted(task *models.Task) { f.started = append(f.started, task.ID) }
func (f *fakeLifecycle) TaskStopped(taskID string)     { f.stopped = append(f.stopped, taskID) }

func validCreateRequest() models.CreateTaskRequest {
	return models.CreateTaskRequest{
		Name:           "mirror alice",
		SourceAccounts: []string{"src-1", "src-2"},
		TargetAccounts: []string{"tgt-1"},
		Filters:        models.TaskFilters{TriggerType: "on_tweet", PollIntervalSeconds: 60},
	}
}

func TestCreateStartsPolling(t *testing.T) {
	store := newMemTaskStore()
	lifecycle := &fakeLifecycle{}
	svc := NewService(store, lifecycle, logging.NewLogger())

	task, duplicate, err := svc.Create(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if duplicate {
		t.Fatalf("first submission flagged duplicate")
	}
	if task.Status != models.TaskStatusActive {
		t.Fatalf("status = %s, want active", task.Status)
	}
	if len(lifecycle.started) != 1 || lifecycle.started[0] != task.ID {
		t.Fatalf("lifecycle.started = %v", lifecycle.started)
	}
}

func TestCreateDuplicateIsIdempotent(t *testing.T) {
	store := newMemTaskStore()
	svc := NewService(store, &fakeLifecycle{}, logging.NewLogger())

	first, _, err := svc.Create(context.Background(), validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Same definition with account order shuffled and a different name.
	req := validCreateRequest()
	req.Name = "another name"
	req.SourceAccounts = []string{"src-2", "src-1"}

	second, duplicate, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}
	if !duplicate {
		t.Fatalf("expected duplicate marker")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate returned %s, want %s", second.ID, first.ID)
	}
	if len(store.tasks) != 1 {
		t.Fatalf("stored task count = %d, want 1", len(store.tasks))
	}
}

func TestCreateDifferentTriggerIsNotDuplicate(t *testing.T) {
	store := newMemTaskStore()
	svc := NewService(store, &fakeLifecycle{}, logging.NewLogger())

	if _, _, err := svc.Create(context.Background(), validCreateRequest()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := validCreateRequest()
	req.Filters.TriggerType = "on_mention"
	_, duplicate, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if duplicate {
		t.Fatalf("different trigger type flagged duplicate")
	}
	if len(store.tasks) != 2 {
		t.Fatalf("stored task count = %d, want 2", len(store.tasks))
	}
}

func TestCreateRejectsUnknownTrigger(t *testing.T) {
	svc := NewService(newMemTaskStore(), &fakeLifecycle{}, logging.NewLogger())

	req := validCreateRequest()
	req.Filters.TriggerType = "on_vibes"
	if _, _, err := svc.Create(context.Background(), req); err == nil {
		t.Fatalf("expected error for unknown trigger type")
	}
}

func TestToggleFlipsStatusAndLifecycle(t *testing.T) {
	store := newMemTaskStore()
	lifecycle := &fakeLifecycle{}
	svc := NewService(store, lifecycle, logging.NewLogger())

	task, _, _ := svc.Create(context.Background(), validCreateRequest())

	paused, err := svc.Toggle(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if paused.Status != models.TaskStatusPaused {
		t.Fatalf("status = %s, want paused", paused.Status)
	}
	if len(lifecycle.stopped) != 1 {
		t.Fatalf("lifecycle.stopped = %v", lifecycle.stopped)
	}

	resumed, err := svc.Toggle(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if resumed.Status != models.TaskStatusActive {
		t.Fatalf("status = %s, want active", resumed.Status)
	}
	if len(lifecycle.started) != 2 {
		t.Fatalf("lifecycle.started = %v", lifecycle.started)
	}
}

func TestToggleReactivatesErroredTask(t *testing.T) {
	store := newMemTaskStore()
	svc := NewService(store, &fakeLifecycle{}, logging.NewLogger())

	task, _, _ := svc.Create(context.Background(), validCreateRequest())
	if err := svc.MarkError(context.Background(), task.ID); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	toggled, err := svc.Toggle(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if toggled.Status != models.TaskStatusActive {
		t.Fatalf("status = %s, want active", toggled.Status)
	}
}

func TestDeleteStopsPolling(t *testing.T) {
	store := newMemTaskStore()
	lifecycle := &fakeLifecycle{}
	svc := NewService(store, lifecycle, logging.NewLogger())

	task, _, _ := svc.Create(context.Background(), validCreateRequest())
	if err := svc.Delete(context.Background(), task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(lifecycle.stopped) != 1 || lifecycle.stopped[0] != task.ID {
		t.Fatalf("lifecycle.stopped = %v", lifecycle.stopped)
	}
}

func TestUpdateRestartsPolling(t *testing.T) {
	store := newMemTaskStore()
	lifecycle := &fakeLifecycle{}
	svc := NewService(store, lifecycle, logging.NewLogger())

	task, _, _ := svc.Create(context.Background(), validCreateRequest())

	req := validCreateRequest()
	req.Filters.TriggerType = "on_keyword"
	req.Filters.TriggerValue = "release"
	updated, err := svc.Update(context.Background(), task.ID, req)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Filters.TriggerValue != "release" {
		t.Fatalf("filters not updated: %+v", updated.Filters)
	}
	if len(lifecycle.stopped) != 1 || len(lifecycle.started) != 2 {
		t.Fatalf("lifecycle started=%v stopped=%v", lifecycle.started, lifecycle.stopped)
	}
}

func TestIsDuplicateIgnoresDuplicateIDsWithinSet(t *testing.T) {
	existing := models.Task{
		SourceAccounts: []string{"a", "b"},
		TargetAccounts: []string{"c"},
		Filters:        models.TaskFilters{TriggerType: "on_tweet"},
	}
	candidate := models.CreateTaskRequest{
		SourceAccounts: []string{"b", "a", "b"},
		TargetAccounts: []string{"c", "c"},
		Filters:        models.TaskFilters{TriggerType: "on_tweet"},
	}
	if !IsDuplicate(candidate, existing) {
		t.Fatalf("repeated ids must not defeat set comparison")
	}
}

func TestIsDuplicateDistinguishesTargetSets(t *testing.T) {
	existing := models.Task{
		SourceAccounts: []string{"a"},
		TargetAccounts: []string{"c"},
		Filters:        models.TaskFilters{TriggerType: "on_tweet"},
	}
	candidate := models.CreateTaskRequest{
		SourceAccounts: []string{"a"},
		TargetAccounts: []string{"c", "d"},
		Filters:        models.TaskFilters{TriggerType: "on_tweet"},
	}
	if IsDuplicate(candidate, existing) {
		t.Fatalf("different target sets flagged duplicate")
	}
}
