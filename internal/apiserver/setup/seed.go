// Package setup 演示数据初始化
//
// api-server -seed 在空库上写入一组演示账号、模块和选课记录，
// 所有演示账号密码均为 DemoPassword。
package setup

import (
	"context"
	"fmt"
	"log"
	"time"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
)

// DemoPassword 演示账号统一密码
const DemoPassword = "password"

// DemoStudentCount 演示学生数量
const DemoStudentCount = 15

// Store 初始化所需的存储能力
type Store interface {
	CountUsers(ctx context.Context) (int, error)
	storage.Transactor
}

type demoModule struct {
	code        string
	title       string
	description string
	teacher     int // 0 或 1，对应 teacher1/teacher2
}

var demoModules = []demoModule{
	{"CS101", "Introduction to Programming", "Learn the basics of programming with Python", 0},
	{"CS201", "Web Development", "Build modern web applications", 0},
	{"CS301", "Database Systems", "Learn database design and SQL", 1},
	{"CS401", "Advanced Algorithms", "Master algorithm design and analysis", 1},
}

// Seed 写入演示数据，库中已有任何用户时跳过
//
// 返回值表示是否实际写入。
func Seed(ctx context.Context, store Store, cfg auth.Config) (bool, error) {
	n, err := store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		log.Printf("[setup] Database already has %d users, skipping seed", n)
		return false, nil
	}

	// 所有账号共用一个哈希
	hash, err := auth.HashPassword(DemoPassword, cfg.BcryptCost)
	if err != nil {
		return false, fmt.Errorf("hash demo password: %w", err)
	}

	now := time.Now().UTC()
	seq := 0
	// 递增时间戳保证列表顺序与创建顺序一致
	next := func() time.Time {
		seq++
		return now.Add(time.Duration(seq) * time.Millisecond)
	}

	err = store.WithTx(ctx, func(tx storage.TxStore) error {
		newUser := func(name, email string, role model.UserRole) (*model.User, error) {
			at := next()
			u := &model.User{
				ID:           apiutil.GenerateID(apiutil.PrefixUser),
				Name:         name,
				Email:        email,
				PasswordHash: hash,
				Role:         role,
				CreatedAt:    at,
				UpdatedAt:    at,
			}
			if err := tx.CreateUser(ctx, u); err != nil {
				return nil, fmt.Errorf("create user %s: %w", email, err)
			}
			return u, nil
		}

		if _, err := newUser("Admin User", "admin@school.com", model.UserRoleAdmin); err != nil {
			return err
		}
		var teachers []*model.User
		for i, name := range []string{"John Teacher", "Jane Teacher"} {
			t, err := newUser(name, fmt.Sprintf("teacher%d@school.com", i+1), model.UserRoleTeacher)
			if err != nil {
				return err
			}
			teachers = append(teachers, t)
		}
		var students []*model.User
		for i := 1; i <= DemoStudentCount; i++ {
			s, err := newUser(fmt.Sprintf("Student %d", i), fmt.Sprintf("student%d@school.com", i), model.UserRoleStudent)
			if err != nil {
				return err
			}
			students = append(students, s)
		}

		modules := make([]*model.Module, 0, len(demoModules))
		for _, dm := range demoModules {
			at := next()
			description := dm.description
			m := &model.Module{
				ID:          apiutil.GenerateID(apiutil.PrefixModule),
				Code:        dm.code,
				Title:       dm.title,
				Description: &description,
				TeacherID:   &teachers[dm.teacher].ID,
				MaxStudents: model.DefaultMaxStudents,
				IsAvailable: true,
				CreatedAt:   at,
				UpdatedAt:   at,
			}
			if err := tx.CreateModule(ctx, m); err != nil {
				return fmt.Errorf("create module %s: %w", dm.code, err)
			}
			modules = append(modules, m)
		}

		enrol := func(student *model.User, module *model.Module, daysAgo int, result *model.EnrolmentResult, completedDaysAgo int) error {
			at := next()
			e := &model.Enrolment{
				ID:         apiutil.GenerateID(apiutil.PrefixEnrolment),
				UserID:     student.ID,
				ModuleID:   module.ID,
				EnrolledAt: now.AddDate(0, 0, -daysAgo),
				CreatedAt:  at,
				UpdatedAt:  at,
			}
			if result != nil {
				completed := now.AddDate(0, 0, -completedDaysAgo)
				e.CompletedAt = &completed
				e.Result = result
			}
			if err := tx.CreateEnrolment(ctx, e); err != nil {
				return fmt.Errorf("enrol %s in %s: %w", student.Email, module.Code, err)
			}
			return nil
		}

		// CS101: 学生 1-5；CS201: 学生 1-3；CS301: 学生 6-9
		plan := []struct {
			module int
			from   int
			to     int
		}{
			{0, 0, 5},
			{1, 0, 3},
			{2, 5, 9},
		}
		for _, p := range plan {
			for i, s := range students[p.from:p.to] {
				if err := enrol(s, modules[p.module], 10+i*4, nil, 0); err != nil {
					return err
				}
			}
		}

		// 学生 11 已完成 CS101 并通过
		pass := model.EnrolmentResultPass
		return enrol(students[10], modules[0], 60, &pass, 10)
	})
	if err != nil {
		return false, err
	}

	log.Printf("[setup] Seeded demo data: 1 admin, 2 teachers, %d students, %d modules", DemoStudentCount, len(demoModules))
	return true, nil
}
