package repository

import (
	"context"
	"time"

	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
)

const moduleColumns = `id, code, title, description, teacher_id, max_students, is_available, created_at, updated_at`

func scanModule(sc scanner) (*model.Module, error) {
	m := &model.Module{}
	if err := sc.Scan(moduleDest(m)...); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateModule 创建模块
func (s *Store) CreateModule(ctx context.Context, m *model.Module) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO modules (id, code, title, description, teacher_id, max_students, is_available, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`),
		m.ID, m.Code, m.Title, m.Description, m.TeacherID,
		m.MaxStudents, m.IsAvailable, m.CreatedAt, m.UpdatedAt,
	)
	return s.translate(err)
}

// GetModule 获取模块
func (s *Store) GetModule(ctx context.Context, id string) (*model.Module, error) {
	m, err := scanModule(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+moduleColumns+` FROM modules WHERE id = $1`), id))
	if isNoRows(err) {
		return nil, nil
	}
	return m, err
}

// LockModule 事务内锁定模块行，容量检查与插入在同一把锁下完成
func (s *Store) LockModule(ctx context.Context, id string) (*model.Module, error) {
	m, err := scanModule(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+moduleColumns+` FROM modules WHERE id = $1`+s.lockClause()), id))
	if isNoRows(err) {
		return nil, nil
	}
	return m, err
}

// GetModuleByCode 通过 code 获取模块
func (s *Store) GetModuleByCode(ctx context.Context, code string) (*model.Module, error) {
	m, err := scanModule(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+moduleColumns+` FROM modules WHERE code = $1`), code))
	if isNoRows(err) {
		return nil, nil
	}
	return m, err
}

// ListModulesPage 按创建时间倒序分页
func (s *Store) ListModulesPage(ctx context.Context, offset, limit int) ([]*model.Module, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM modules`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+moduleColumns+` FROM modules
		 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	modules, err := collectModules(rows)
	if err != nil {
		return nil, 0, err
	}
	return modules, total, nil
}

// ListModulesByTeacher 教师负责的模块，新建的在前
func (s *Store) ListModulesByTeacher(ctx context.Context, teacherID string) ([]*model.Module, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+moduleColumns+` FROM modules WHERE teacher_id = $1
		 ORDER BY created_at DESC, id DESC`), teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectModules(rows)
}

type moduleRows interface {
	scanner
	Next() bool
	Err() error
}

func collectModules(rows moduleRows) ([]*model.Module, error) {
	modules := []*model.Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// SetModuleAvailability 开放/关闭（归档）模块
func (s *Store) SetModuleAvailability(ctx context.Context, id string, available bool) error {
	return expectAffected(s.db.ExecContext(ctx,
		s.rebind(`UPDATE modules SET is_available = $1, updated_at = $2 WHERE id = $3`),
		available, time.Now().UTC(), id,
	))
}

// ToggleModuleAvailability 单条 UPDATE 翻转开放状态，返回翻转后的模块
func (s *Store) ToggleModuleAvailability(ctx context.Context, id string) (*model.Module, error) {
	var m *model.Module
	err := s.WithTx(ctx, func(tx storage.TxStore) error {
		txs := tx.(*Store)
		if err := expectAffected(txs.db.ExecContext(ctx,
			txs.rebind(`UPDATE modules SET is_available = NOT is_available, updated_at = $1 WHERE id = $2`),
			time.Now().UTC(), id,
		)); err != nil {
			return err
		}
		var err error
		m, err = txs.GetModule(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetModuleTeacher 指派或取消指派教师（teacherID 为 nil 表示取消）
func (s *Store) SetModuleTeacher(ctx context.Context, id string, teacherID *string) error {
	return expectAffected(s.db.ExecContext(ctx,
		s.rebind(`UPDATE modules SET teacher_id = $1, updated_at = $2 WHERE id = $3`),
		teacherID, time.Now().UTC(), id,
	))
}

// UnassignTeacherModules 取消教师在所有模块上的指派
func (s *Store) UnassignTeacherModules(ctx context.Context, teacherID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE modules SET teacher_id = NULL, updated_at = $1 WHERE teacher_id = $2`),
		time.Now().UTC(), teacherID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
