package repository

import (
	"context"
	"strconv"
	"time"

	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage/dbutil"
)

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(sc scanner) (*model.User, error) {
	u := &model.User{}
	err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		user.ID, user.Name, user.Email, user.PasswordHash,
		string(user.Role), user.CreatedAt, user.UpdatedAt,
	)
	return s.translate(err)
}

// GetUserByEmail 通过邮箱查找用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE email = $1`), email))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE id = $1`), id))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

// LockUser 事务内锁定用户行
func (s *Store) LockUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+userColumns+` FROM users WHERE id = $1`+s.lockClause()), id))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

// UpdateUserPassword 更新用户密码
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return expectAffected(s.db.ExecContext(ctx,
		s.rebind(`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`),
		passwordHash, time.Now().UTC(), id,
	))
}

// UpdateUserRole 修改用户角色
func (s *Store) UpdateUserRole(ctx context.Context, id string, role model.UserRole) error {
	return expectAffected(s.db.ExecContext(ctx,
		s.rebind(`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`),
		string(role), time.Now().UTC(), id,
	))
}

// DeleteUser 删除用户（选课记录级联删除，负责的模块置空教师）
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return expectAffected(s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM users WHERE id = $1`), id))
}

// CountUsers 用户总数
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&n)
	return n, err
}

func rolesArgs(roles []model.UserRole) []any {
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = string(r)
	}
	return args
}

// ListUsersByRole 按创建顺序列出指定角色的用户
func (s *Store) ListUsersByRole(ctx context.Context, roles []model.UserRole, limit int) ([]*model.User, error) {
	if len(roles) == 0 {
		return []*model.User{}, nil
	}
	args := rolesArgs(roles)
	query := `SELECT ` + userColumns + ` FROM users WHERE role IN (` +
		dbutil.PlaceholderList(s.dialect, 1, len(roles)) + `) ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(roles)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsersByRole 统计指定角色的用户数
func (s *Store) CountUsersByRole(ctx context.Context, roles []model.UserRole) (int, error) {
	if len(roles) == 0 {
		return 0, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(1) FROM users WHERE role IN (`+dbutil.PlaceholderList(s.dialect, 1, len(roles))+`)`),
		rolesArgs(roles)...,
	).Scan(&n)
	return n, err
}

// ListTeachers 列出所有教师及其负责的模块数
func (s *Store) ListTeachers(ctx context.Context) ([]*model.TeacherSummary, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT u.id, u.name, u.email, u.role,
		        (SELECT COUNT(1) FROM modules m WHERE m.teacher_id = u.id)
		 FROM users u WHERE u.role = $1 ORDER BY u.name ASC, u.id ASC`),
		string(model.UserRoleTeacher),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teachers := []*model.TeacherSummary{}
	for rows.Next() {
		t := &model.TeacherSummary{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.Role, &t.TeachingModulesCount); err != nil {
			return nil, err
		}
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}
