// Package enrolment 选课资格引擎与相关 HTTP 接口
//
// 引擎是选课和登记成绩的唯一入口：容量、每人在读上限、角色与归属校验
// 都在同一事务内完成，成功提交后发布选课事件。
package enrolment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/eventbus"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
	"nayaschool/pkg/logging"
)

// 选课决策结果，用于日志与指标标签
const (
	OutcomeCreated     = "created"
	OutcomeExisting    = "existing"
	OutcomeUnavailable = "module_unavailable"
	OutcomeLimit       = "limit_reached"
	OutcomeForbidden   = "forbidden"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// publishTimeout 事件发布超时，发布失败不影响请求结果
const publishTimeout = 2 * time.Second

// Policy 选课策略
type Policy struct {
	// MaxActiveEnrolments 每名学生同时在读模块数上限
	MaxActiveEnrolments int
	// AllowRegrade 为 false 时已完成的选课不能再次登记成绩
	AllowRegrade bool
}

// DefaultPolicy 默认策略：上限 4，允许覆盖成绩
func DefaultPolicy() Policy {
	return Policy{
		MaxActiveEnrolments: model.MaxActiveEnrolments,
		AllowRegrade:        true,
	}
}

// Recorder 选课指标记录器
type Recorder interface {
	ObserveEnrolment(outcome string)
	ObserveResult(result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveEnrolment(string) {}
func (nopRecorder) ObserveResult(string)    {}

// Option 引擎可选项
type Option func(*Engine)

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger 设置日志器
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine 选课资格引擎
type Engine struct {
	store   storage.PersistentStore
	events  eventbus.EnrolmentEventBus
	policy  Policy
	metrics Recorder
	now     func() time.Time
	logger  *logging.Logger
}

// NewEngine 创建引擎，events 为 nil 时不发布事件
func NewEngine(store storage.PersistentStore, events eventbus.EnrolmentEventBus, policy Policy, opts ...Option) *Engine {
	if policy.MaxActiveEnrolments <= 0 {
		policy.MaxActiveEnrolments = model.MaxActiveEnrolments
	}
	if events == nil {
		events = eventbus.NewNoOpEventBus()
	}
	e := &Engine{
		store:   store,
		events:  events,
		policy:  policy,
		metrics: nopRecorder{},
		now:     time.Now,
		logger:  logging.Default("enrolment"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy 当前策略
func (e *Engine) Policy() Policy {
	return e.policy
}

// CountActiveEnrolments 学生在读模块数
func (e *Engine) CountActiveEnrolments(ctx context.Context, userID string) (int, error) {
	return e.store.CountActiveEnrolments(ctx, userID)
}

// CountActiveStudents 模块在读人数
func (e *Engine) CountActiveStudents(ctx context.Context, moduleID string) (int, error) {
	return e.store.CountActiveStudents(ctx, moduleID)
}

// CanEnrolMore 学生是否还能选更多模块
func (e *Engine) CanEnrolMore(ctx context.Context, user *model.User) (bool, error) {
	if !user.Role.CanEnrol() {
		return false, nil
	}
	n, err := e.store.CountActiveEnrolments(ctx, user.ID)
	if err != nil {
		return false, err
	}
	return n < e.policy.MaxActiveEnrolments, nil
}

// ============================================================================
// TryEnrol
// ============================================================================

// TryEnrol 尝试选课
//
// 校验顺序：用户存在且为学生 → 模块存在且开放 → 模块未满 → 学生在读数未达上限，
// 全部通过后才查 (user, module) 记录，已存在则原样返回，created 为 false。
// 行锁顺序固定为先用户后模块，两把锁都拿到之后才做普通读。
func (e *Engine) TryEnrol(ctx context.Context, userID, moduleID string) (*model.Enrolment, bool, error) {
	var (
		enrolment *model.Enrolment
		created   bool
	)

	err := e.store.WithTx(ctx, func(tx storage.TxStore) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
		}
		if !user.Role.CanEnrol() {
			return fmt.Errorf("%w: only students can enrol", apperr.ErrForbidden)
		}

		module, err := tx.LockModule(ctx, moduleID)
		if err != nil {
			return fmt.Errorf("lock module: %w", err)
		}
		if module == nil {
			return fmt.Errorf("module %s: %w", moduleID, apperr.ErrNotFound)
		}
		if !module.IsAvailable {
			return apperr.ErrModuleUnavailable
		}

		students, err := tx.CountActiveStudents(ctx, moduleID)
		if err != nil {
			return fmt.Errorf("count active students: %w", err)
		}
		if !module.HasCapacity(students) {
			return apperr.ErrModuleUnavailable
		}

		active, err := tx.CountActiveEnrolments(ctx, userID)
		if err != nil {
			return fmt.Errorf("count active enrolments: %w", err)
		}
		if active >= e.policy.MaxActiveEnrolments {
			return apperr.ErrEnrolmentLimitReached
		}

		existing, err := tx.GetEnrolmentByPair(ctx, userID, moduleID)
		if err != nil {
			return fmt.Errorf("get enrolment: %w", err)
		}
		if existing != nil {
			enrolment = existing
			return nil
		}

		now := e.now().UTC()
		enrolment = &model.Enrolment{
			ID:         apiutil.GenerateID(apiutil.PrefixEnrolment),
			UserID:     userID,
			ModuleID:   moduleID,
			EnrolledAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateEnrolment(ctx, enrolment); err != nil {
			return err
		}
		created = true
		return nil
	})

	// 唯一约束兜底：并发插入同一 (user, module) 时返回已存在的记录
	if errors.Is(err, storage.ErrDuplicate) {
		existing, getErr := e.store.GetEnrolmentByPair(ctx, userID, moduleID)
		if getErr != nil {
			err = fmt.Errorf("get enrolment after conflict: %w", getErr)
		} else if existing != nil {
			enrolment, created, err = existing, false, nil
		}
	}

	log := e.logger.WithContext(ctx)
	outcome := outcomeOf(err, created)
	e.metrics.ObserveEnrolment(outcome)
	if err != nil {
		if outcome == OutcomeError {
			log.WithError(err).EnrolmentLog("enrol", userID, moduleID, outcome)
		} else {
			log.EnrolmentLog("enrol", userID, moduleID, outcome)
		}
		return nil, false, err
	}
	log.EnrolmentLog("enrol", userID, moduleID, outcome, "enrolment_id", enrolment.ID)

	if created {
		e.publish(ctx, &eventbus.EnrolmentEvent{
			Type:        eventbus.EnrolmentCreated,
			EnrolmentID: enrolment.ID,
			UserID:      enrolment.UserID,
			ModuleID:    enrolment.ModuleID,
			OccurredAt:  enrolment.EnrolledAt,
		})
	}
	return enrolment, created, nil
}

func outcomeOf(err error, created bool) string {
	switch {
	case err == nil && created:
		return OutcomeCreated
	case err == nil:
		return OutcomeExisting
	case errors.Is(err, apperr.ErrModuleUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, apperr.ErrEnrolmentLimitReached):
		return OutcomeLimit
	case errors.Is(err, apperr.ErrForbidden):
		return OutcomeForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

// ListAvailableModules 学生可选模块，非学生返回空列表
func (e *Engine) ListAvailableModules(ctx context.Context, userID string) ([]*model.ModuleSummary, error) {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.Role.CanEnrol() {
		return []*model.ModuleSummary{}, nil
	}
	return e.store.ListAvailableModules(ctx, userID)
}

// ============================================================================
// RecordResult
// ============================================================================

// AuthorizeResult 只做归属校验：选课存在，且请求者是该模块的指派教师
func (e *Engine) AuthorizeResult(ctx context.Context, enrolmentID, requesterID string) error {
	return authorizeResult(ctx, e.store, enrolmentID, requesterID)
}

// resultReader 归属校验所需的读接口，事务内外共用
type resultReader interface {
	GetEnrolment(ctx context.Context, id string) (*model.Enrolment, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetModule(ctx context.Context, id string) (*model.Module, error)
}

func authorizeResult(ctx context.Context, r resultReader, enrolmentID, requesterID string) error {
	enrolment, err := r.GetEnrolment(ctx, enrolmentID)
	if err != nil {
		return fmt.Errorf("get enrolment: %w", err)
	}
	if enrolment == nil {
		return fmt.Errorf("enrolment %s: %w", enrolmentID, apperr.ErrNotFound)
	}

	requester, err := r.GetUserByID(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("get requester: %w", err)
	}
	module, err := r.GetModule(ctx, enrolment.ModuleID)
	if err != nil {
		return fmt.Errorf("get module: %w", err)
	}
	if requester == nil || !requester.Role.IsTeacher() || module == nil || !module.IsTaughtBy(requesterID) {
		return fmt.Errorf("%w: only the module's teacher can record results", apperr.ErrForbidden)
	}
	return nil
}

// RecordResult 教师登记成绩
//
// 只有模块的指派教师可以登记；completed_at 与 result 在同一条 UPDATE 中写入。
// 策略允许时重复登记直接覆盖，否则返回 ErrAlreadyCompleted。
func (e *Engine) RecordResult(ctx context.Context, enrolmentID, requesterID, result string) (*model.Enrolment, error) {
	var updated *model.Enrolment

	err := e.store.WithTx(ctx, func(tx storage.TxStore) error {
		if err := authorizeResult(ctx, tx, enrolmentID, requesterID); err != nil {
			return err
		}

		parsed, ok := model.ParseEnrolmentResult(result)
		if !ok {
			return apperr.NewValidationError("result", "The selected result is invalid.")
		}

		err := tx.CompleteEnrolment(ctx, enrolmentID, parsed, e.now().UTC(), !e.policy.AllowRegrade)
		if errors.Is(err, storage.ErrConflict) {
			return apperr.ErrAlreadyCompleted
		}
		if err != nil {
			return fmt.Errorf("complete enrolment: %w", err)
		}

		updated, err = tx.GetEnrolment(ctx, enrolmentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveResult(string(*updated.Result))
	e.logger.WithContext(ctx).WithEnrolmentID(updated.ID).
		EnrolmentLog("record_result", updated.UserID, updated.ModuleID, string(*updated.Result))

	e.publish(ctx, &eventbus.EnrolmentEvent{
		Type:        eventbus.EnrolmentCompleted,
		EnrolmentID: updated.ID,
		UserID:      updated.UserID,
		ModuleID:    updated.ModuleID,
		Result:      string(*updated.Result),
		OccurredAt:  *updated.CompletedAt,
	})
	return updated, nil
}

// DeleteEnrolment 管理员硬删除选课记录，不经过资格校验
func (e *Engine) DeleteEnrolment(ctx context.Context, enrolmentID string) error {
	enrolment, err := e.store.GetEnrolment(ctx, enrolmentID)
	if err != nil {
		return fmt.Errorf("get enrolment: %w", err)
	}
	if enrolment == nil {
		return fmt.Errorf("enrolment %s: %w", enrolmentID, apperr.ErrNotFound)
	}
	if err := e.store.DeleteEnrolment(ctx, enrolmentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("enrolment %s: %w", enrolmentID, apperr.ErrNotFound)
		}
		return fmt.Errorf("delete enrolment: %w", err)
	}

	e.logger.WithContext(ctx).WithEnrolmentID(enrolmentID).
		EnrolmentLog("delete", enrolment.UserID, enrolment.ModuleID, "deleted")
	e.publish(ctx, &eventbus.EnrolmentEvent{
		Type:        eventbus.EnrolmentDeleted,
		EnrolmentID: enrolment.ID,
		UserID:      enrolment.UserID,
		ModuleID:    enrolment.ModuleID,
		OccurredAt:  e.now().UTC(),
	})
	return nil
}

// publish 提交后发布事件，失败只记录日志
func (e *Engine) publish(ctx context.Context, event *eventbus.EnrolmentEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.events.PublishEnrolmentEvent(pubCtx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to publish enrolment event",
			"type", string(event.Type), "enrolment_id", event.EnrolmentID)
	}
}
