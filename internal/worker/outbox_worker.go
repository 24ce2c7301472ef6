package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/events"
	"hairstudio/internal/metrics"
	"hairstudio/internal/models"
	"hairstudio/internal/notify"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskBookingConfirmation = "booking_confirmation"
	TaskAdminNotice         = "admin_notice"
	TaskCancellation        = "cancellation"
	TaskChangeNotice        = "change_notice"
	TaskSheetUpsert         = "sheet_upsert"
)

const (
	resultOK      = "ok"
	resultSkipped = "skipped"
	resultRetry   = "retry"
	resultFailed  = "failed"
)

const enqueueTimeout = 5 * time.Second

// errSkipped marks a task whose channel is not configured or has no recipient.
var errSkipped = errors.New("no delivery channel")

// taskPayload is persisted in OutboxTask.Payload as JSON.
type taskPayload struct {
	Appointment *models.Appointment `json:"appointment,omitempty"`
	IsCustomer  bool                `json:"is_customer,omitempty"`
	OldDate     string              `json:"old_date,omitempty"`
	OldTime     string              `json:"old_time,omitempty"`
}

// ChatNotifier is the admin chat channel.
type ChatNotifier interface {
	Enabled() bool
	Notify(ctx context.Context, text string) error
}

// Deps are the collaborators of the worker. Every field except Appointments is optional.
type Deps struct {
	Store        domain.OutboxStore
	Appointments domain.AppointmentStore
	Mailer       domain.Mailer
	Chat         ChatNotifier
	Sheets       domain.SheetsWriter
	Redis        *redis.Client
	AdminEmail   string
}

// OutboxWorker implements domain.Notifier by queueing tasks and delivers them
// in the background with retries.
type OutboxWorker struct {
	store         domain.OutboxStore
	appointments  domain.AppointmentStore
	mailer        domain.Mailer
	chat          ChatNotifier
	sheets        domain.SheetsWriter
	redis         *redis.Client
	adminEmail    string
	retryPolicy   RetryPolicy
	queue         chan models.OutboxTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	pending       sync.WaitGroup
	logger        *zerolog.Logger
}

var _ domain.Notifier = (*OutboxWorker)(nil)

func NewOutboxWorker(deps Deps, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 5 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		store:         deps.Store,
		appointments:  deps.Appointments,
		mailer:        deps.Mailer,
		chat:          deps.Chat,
		sheets:        deps.Sheets,
		redis:         deps.Redis,
		adminEmail:    deps.AdminEmail,
		retryPolicy:   retry,
		queue:         make(chan models.OutboxTask, models.WorkerQueueSize),
		redisQueueKey: "studio:outbox:queue",
		deadLetterKey: "studio:outbox:deadletter",
		pollInterval:  pollInterval,
		batchSize:     20,
		logger:        logger,
	}
}

func (w *OutboxWorker) SendBookingConfirmation(ctx context.Context, appointment *models.Appointment) {
	w.enqueueLogged(ctx, TaskBookingConfirmation, appointment, taskPayload{})
}

func (w *OutboxWorker) SendAdminNotification(ctx context.Context, appointment *models.Appointment) {
	w.enqueueLogged(ctx, TaskAdminNotice, appointment, taskPayload{})
}

func (w *OutboxWorker) SendCancellation(ctx context.Context, appointment *models.Appointment, isCustomer bool) {
	w.enqueueLogged(ctx, TaskCancellation, appointment, taskPayload{IsCustomer: isCustomer})
}

func (w *OutboxWorker) SendChangeNotice(ctx context.Context, appointment *models.Appointment, oldDate, oldTime string) {
	w.enqueueLogged(ctx, TaskChangeNotice, appointment, taskPayload{OldDate: oldDate, OldTime: oldTime})
}

// SubscribeSheetMirror queues a sheet_upsert task for every appointment event.
func (w *OutboxWorker) SubscribeSheetMirror(bus *events.EventBus) {
	if w.sheets == nil || bus == nil {
		return
	}
	handler := func(event *events.Event) error {
		var payload events.AppointmentEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		if payload.AppointmentID == "" {
			return nil
		}
		w.dispatch(context.Background(), TaskSheetUpsert, payload.AppointmentID, taskPayload{})
		return nil
	}
	for _, eventType := range []string{
		events.EventAppointmentCreated,
		events.EventAppointmentCancelled,
		events.EventAppointmentUpdated,
		events.EventAppointmentMoved,
		events.EventAppointmentDeleted,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func (w *OutboxWorker) enqueueLogged(ctx context.Context, taskType string, appointment *models.Appointment, payload taskPayload) {
	if appointment == nil {
		return
	}
	snapshot := *appointment
	payload.Appointment = &snapshot
	w.dispatch(ctx, taskType, appointment.ID, payload)
}

// dispatch queues the task in the background so a slow store or redis never
// holds up the caller.
func (w *OutboxWorker) dispatch(ctx context.Context, taskType, appointmentID string, payload taskPayload) {
	// запрос может завершиться раньше, чем задача будет сохранена
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		defer cancel()
		if err := w.enqueue(ctx, taskType, appointmentID, payload); err != nil {
			w.logger.Error().Err(err).Str("task_type", taskType).Str("appointment_id", appointmentID).Msg("Failed to enqueue notification")
		}
	}()
}

// Wait blocks until every dispatched task is queued or has given up.
func (w *OutboxWorker) Wait() {
	w.pending.Wait()
}

// enqueue persists the task and schedules it via redis or the in-memory queue.
func (w *OutboxWorker) enqueue(ctx context.Context, taskType, appointmentID string, payload taskPayload) error {
	if taskType == "" {
		return errors.New("task type is required")
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.OutboxTask{
		TaskType:      taskType,
		AppointmentID: appointmentID,
		Payload:       string(payloadBytes),
		Status:        models.TaskStatusPending,
		CreatedAt:     time.Now(),
	}

	if w.store != nil {
		if err := w.store.CreateTask(ctx, &task); err != nil {
			return fmt.Errorf("persist outbox task: %w", err)
		}
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		if w.store == nil {
			return fmt.Errorf("queue full, %s task dropped", taskType)
		}
		w.logger.Warn().Int64("task_id", task.ID).Msg("In-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if w.store == nil {
			w.wait(ctx)
			continue
		}

		tasks, err := w.store.GetPendingTasks(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("Failed to fetch pending outbox tasks")
			}
			w.wait(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.wait(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *OutboxWorker) wait(ctx context.Context) {
	if w.redis != nil {
		// BRPOP уже подождал
		return
	}
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case t := <-w.queue:
		w.processTask(ctx, &t)
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return models.OutboxTask{}, false
		}
		w.logger.Error().Err(err).Msg("Redis BRPOP failed")
		w.sleep(ctx, w.pollInterval)
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode redis task")
		return models.OutboxTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	// задача из очереди могла быть уже обработана опросом базы
	if task.ID != 0 && w.store != nil {
		fresh, err := w.store.GetTask(ctx, task.ID)
		if err == nil {
			if fresh.Status == models.TaskStatusCompleted || fresh.Status == models.TaskStatusFailed {
				return
			}
			task = fresh
		}
	}

	log := w.logger.With().Int64("task_id", task.ID).Str("task_type", task.TaskType).Str("appointment_id", task.AppointmentID).Logger()

	payload, err := decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	err = w.handleTask(ctx, task, payload)
	switch {
	case errors.Is(err, errSkipped):
		log.Debug().Msg("Outbox task skipped")
		w.complete(ctx, task, resultSkipped)
	case err != nil:
		log.Error().Err(err).Int("attempt", task.RetryCount+1).Msg("Outbox task failed")
		w.retryOrFail(ctx, task, err)
	default:
		w.complete(ctx, task, resultOK)
	}
}

func (w *OutboxWorker) handleTask(ctx context.Context, task *models.OutboxTask, payload taskPayload) error {
	if task.TaskType == TaskSheetUpsert {
		return w.mirrorAppointment(ctx, task.AppointmentID)
	}

	a := payload.Appointment
	if a == nil {
		return errors.New("appointment payload missing")
	}

	switch task.TaskType {
	case TaskBookingConfirmation:
		return w.sendCustomer(ctx, a, notify.RenderConfirmation(a))
	case TaskAdminNotice:
		return w.notifyAdmin(ctx, notify.RenderAdminNotice(a))
	case TaskCancellation:
		msg := notify.RenderCancellation(a, payload.IsCustomer)
		if payload.IsCustomer {
			return w.sendCustomer(ctx, a, msg)
		}
		return w.notifyAdmin(ctx, msg)
	case TaskChangeNotice:
		msg := notify.RenderChangeNotice(a, payload.OldDate, payload.OldTime)
		return combine(w.sendCustomer(ctx, a, msg), w.notifyAdmin(ctx, msg))
	default:
		return fmt.Errorf("unknown task type: %s", task.TaskType)
	}
}

func (w *OutboxWorker) mirrorAppointment(ctx context.Context, id string) error {
	if w.sheets == nil || w.appointments == nil {
		return errSkipped
	}
	if id == "" {
		return errors.New("appointment id missing")
	}

	appointment, err := w.appointments.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return w.sheets.RemoveAppointment(ctx, id)
	}
	if err != nil {
		return err
	}
	return w.sheets.UpsertAppointment(ctx, appointment)
}

func (w *OutboxWorker) sendCustomer(ctx context.Context, a *models.Appointment, msg notify.Message) error {
	email := models.StringValue(a.CustomerEmail)
	if w.mailer == nil || email == "" {
		return errSkipped
	}
	return w.mailer.Send(ctx, email, msg.Subject, msg.Body)
}

func (w *OutboxWorker) notifyAdmin(ctx context.Context, msg notify.Message) error {
	var results []error
	if w.mailer != nil && w.adminEmail != "" {
		results = append(results, w.mailer.Send(ctx, w.adminEmail, msg.Subject, msg.Body))
	}
	if w.chat != nil && w.chat.Enabled() {
		results = append(results, w.chat.Notify(ctx, msg.Body))
	}
	if len(results) == 0 {
		return errSkipped
	}
	return errors.Join(results...)
}

// combine returns errSkipped only when every channel was skipped.
func combine(results ...error) error {
	var errs []error
	skipped := 0
	for _, err := range results {
		switch {
		case errors.Is(err, errSkipped):
			skipped++
		case err != nil:
			errs = append(errs, err)
		}
	}
	if skipped == len(results) {
		return errSkipped
	}
	return errors.Join(errs...)
}

func (w *OutboxWorker) complete(ctx context.Context, task *models.OutboxTask, result string) {
	metrics.IncNotification(task.TaskType, result)
	if w.store == nil || task.ID == 0 {
		return
	}
	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark outbox task completed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncNotification(task.TaskType, resultRetry)
	nextDelay := w.retryPolicy.NextDelay(attempt)

	if w.store == nil {
		retry := *task
		retry.RetryCount = attempt
		time.AfterFunc(nextDelay, func() {
			select {
			case w.queue <- retry:
			default:
				w.logger.Warn().Str("task_type", retry.TaskType).Msg("In-memory queue full, retry dropped")
			}
		})
		return
	}

	nextTime := time.Now().Add(nextDelay)
	if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark outbox task for retry")
	}
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	metrics.IncNotification(task.TaskType, resultFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("Outbox task moved to dead letter")

	if w.store != nil && task.ID != 0 {
		if err := w.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark outbox task failed")
		}
	}
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to push dead letter")
		}
	}
}

func (w *OutboxWorker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func decodePayload(raw string) (taskPayload, error) {
	var payload taskPayload
	if raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *OutboxWorker) pushRedis(ctx context.Context, key string, task models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
