package repository

import (
	"context"
	"errors"
	"time"

	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
	"nayaschool/internal/shared/storage/dbutil"
)

const enrolmentColumns = `e.id, e.user_id, e.module_id, e.enrolled_at, e.completed_at, e.result, e.created_at, e.updated_at`

const prefixedModuleColumns = `m.id, m.code, m.title, m.description, m.teacher_id, m.max_students, m.is_available, m.created_at, m.updated_at`

// activeCountExpr 模块在读人数子查询
const activeCountExpr = `(SELECT COUNT(1) FROM enrolments a WHERE a.module_id = m.id AND a.completed_at IS NULL)`

func enrolmentDest(e *model.Enrolment) []any {
	return []any{&e.ID, &e.UserID, &e.ModuleID, &e.EnrolledAt, &e.CompletedAt, &e.Result, &e.CreatedAt, &e.UpdatedAt}
}

func moduleDest(m *model.Module) []any {
	return []any{&m.ID, &m.Code, &m.Title, &m.Description, &m.TeacherID,
		&m.MaxStudents, &m.IsAvailable, &m.CreatedAt, &m.UpdatedAt}
}

func scanEnrolment(sc scanner) (*model.Enrolment, error) {
	e := &model.Enrolment{}
	if err := sc.Scan(enrolmentDest(e)...); err != nil {
		return nil, err
	}
	return e, nil
}

func resultArg(r *model.EnrolmentResult) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

// CreateEnrolment 创建选课记录，(user_id, module_id) 重复时返回 storage.ErrDuplicate
func (s *Store) CreateEnrolment(ctx context.Context, e *model.Enrolment) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO enrolments (id, user_id, module_id, enrolled_at, completed_at, result, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		e.ID, e.UserID, e.ModuleID, e.EnrolledAt, e.CompletedAt, resultArg(e.Result), e.CreatedAt, e.UpdatedAt,
	)
	return s.translate(err)
}

// GetEnrolment 获取选课记录
func (s *Store) GetEnrolment(ctx context.Context, id string) (*model.Enrolment, error) {
	e, err := scanEnrolment(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+enrolmentColumns+` FROM enrolments e WHERE e.id = $1`), id))
	if isNoRows(err) {
		return nil, nil
	}
	return e, err
}

// GetEnrolmentByPair 通过 (user, module) 获取选课记录
func (s *Store) GetEnrolmentByPair(ctx context.Context, userID, moduleID string) (*model.Enrolment, error) {
	e, err := scanEnrolment(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+enrolmentColumns+` FROM enrolments e WHERE e.user_id = $1 AND e.module_id = $2`),
		userID, moduleID))
	if isNoRows(err) {
		return nil, nil
	}
	return e, err
}

// CompleteEnrolment 单条 UPDATE 同时写入 completed_at 与 result
func (s *Store) CompleteEnrolment(ctx context.Context, id string, result model.EnrolmentResult, at time.Time, onlyActive bool) error {
	query := `UPDATE enrolments SET completed_at = $1, result = $2, updated_at = $3 WHERE id = $4`
	if onlyActive {
		query += ` AND completed_at IS NULL`
	}
	err := expectAffected(s.db.ExecContext(ctx, s.rebind(query), at, string(result), at, id))
	if !errors.Is(err, storage.ErrNotFound) || !onlyActive {
		return err
	}

	existing, getErr := s.GetEnrolment(ctx, id)
	if getErr != nil {
		return getErr
	}
	if existing != nil {
		return storage.ErrConflict
	}
	return storage.ErrNotFound
}

// DeleteEnrolment 删除选课记录
func (s *Store) DeleteEnrolment(ctx context.Context, id string) error {
	return expectAffected(s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM enrolments WHERE id = $1`), id))
}

// CountActiveEnrolments 学生在读模块数
func (s *Store) CountActiveEnrolments(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(1) FROM enrolments WHERE user_id = $1 AND completed_at IS NULL`), userID,
	).Scan(&n)
	return n, err
}

// CountActiveStudents 模块在读人数
func (s *Store) CountActiveStudents(ctx context.Context, moduleID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(1) FROM enrolments WHERE module_id = $1 AND completed_at IS NULL`), moduleID,
	).Scan(&n)
	return n, err
}

// CountActiveStudentsByModule 批量统计在读人数
func (s *Store) CountActiveStudentsByModule(ctx context.Context, moduleIDs []string) (map[string]int, error) {
	return s.countByModule(ctx, moduleIDs, true)
}

// CountStudentsByModule 批量统计选课总人数（含已完成）
func (s *Store) CountStudentsByModule(ctx context.Context, moduleIDs []string) (map[string]int, error) {
	return s.countByModule(ctx, moduleIDs, false)
}

func (s *Store) countByModule(ctx context.Context, moduleIDs []string, activeOnly bool) (map[string]int, error) {
	counts := make(map[string]int, len(moduleIDs))
	if len(moduleIDs) == 0 {
		return counts, nil
	}

	args := make([]any, len(moduleIDs))
	for i, id := range moduleIDs {
		args[i] = id
		counts[id] = 0
	}
	query := `SELECT module_id, COUNT(1) FROM enrolments WHERE module_id IN (` +
		dbutil.PlaceholderList(s.dialect, 1, len(moduleIDs)) + `)`
	if activeOnly {
		query += ` AND completed_at IS NULL`
	}
	query += ` GROUP BY module_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// ListAvailableModules 可选模块
//
// 条件：模块开放；该用户从未选过（在读或已完成均排除）；在读人数未达上限。
func (s *Store) ListAvailableModules(ctx context.Context, userID string) ([]*model.ModuleSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+prefixedModuleColumns+`, `+activeCountExpr+`
		 FROM modules m
		 WHERE m.is_available = $1
		   AND NOT EXISTS (SELECT 1 FROM enrolments x WHERE x.module_id = m.id AND x.user_id = $2)
		   AND `+activeCountExpr+` < m.max_students
		 ORDER BY m.code ASC, m.id ASC`),
		true, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	modules := []*model.ModuleSummary{}
	for rows.Next() {
		ms := &model.ModuleSummary{}
		dest := append(moduleDest(&ms.Module), &ms.ActiveStudentsCount)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		modules = append(modules, ms)
	}
	return modules, rows.Err()
}

// ListActiveStudents 模块在读学生，按选课时间排序
func (s *Store) ListActiveStudents(ctx context.Context, moduleID string) ([]*model.UserSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT u.id, u.name, u.email, u.role
		 FROM enrolments e JOIN users u ON u.id = e.user_id
		 WHERE e.module_id = $1 AND e.completed_at IS NULL
		 ORDER BY e.enrolled_at ASC, e.id ASC`), moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []*model.UserSummary{}
	for rows.Next() {
		u := &model.UserSummary{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role); err != nil {
			return nil, err
		}
		students = append(students, u)
	}
	return students, rows.Err()
}

// ListModuleEnrolments 模块的全部选课记录（含已完成）及学生信息
func (s *Store) ListModuleEnrolments(ctx context.Context, moduleID string) ([]*model.ModuleEnrolment, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+enrolmentColumns+`, u.id, u.name, u.email, u.role
		 FROM enrolments e JOIN users u ON u.id = e.user_id
		 WHERE e.module_id = $1
		 ORDER BY e.enrolled_at ASC, e.id ASC`), moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.ModuleEnrolment{}
	for rows.Next() {
		me := &model.ModuleEnrolment{Student: &model.UserSummary{}}
		dest := append(enrolmentDest(&me.Enrolment),
			&me.Student.ID, &me.Student.Name, &me.Student.Email, &me.Student.Role)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		list = append(list, me)
	}
	return list, rows.Err()
}

// ListStudentEnrolments 学生的选课记录及模块信息
func (s *Store) ListStudentEnrolments(ctx context.Context, userID string, active bool) ([]*model.StudentEnrolment, error) {
	query := `SELECT ` + enrolmentColumns + `, ` + prefixedModuleColumns + `
		 FROM enrolments e JOIN modules m ON m.id = e.module_id
		 WHERE e.user_id = $1`
	if active {
		query += ` AND e.completed_at IS NULL ORDER BY e.enrolled_at ASC, e.id ASC`
	} else {
		query += ` AND e.completed_at IS NOT NULL ORDER BY e.completed_at DESC, e.id DESC`
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*model.StudentEnrolment{}
	for rows.Next() {
		se := &model.StudentEnrolment{Module: &model.Module{}}
		dest := append(enrolmentDest(&se.Enrolment), moduleDest(se.Module)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		list = append(list, se)
	}
	return list, rows.Err()
}
