// Package module 管理员模块管理接口与模块分页视图
package module

import (
	"context"
	"fmt"

	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
)

// DefaultPerPage 管理员模块列表每页数量
const DefaultPerPage = 3

// Store 模块管理所需的存储操作
type Store interface {
	storage.ModuleStore
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListActiveStudents(ctx context.Context, moduleID string) ([]*model.UserSummary, error)
	CountActiveStudents(ctx context.Context, moduleID string) (int, error)
}

// Page 模块分页结果
type Page struct {
	Data []*model.ModuleDetail `json:"data"`
	Meta model.PageMeta        `json:"meta"`
}

// LoadPage 加载一页模块，附带教师与在读学生
func LoadPage(ctx context.Context, store Store, page, perPage int) (*Page, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	offset := model.NewPageMeta(0, perPage, page).Offset()

	modules, total, err := store.ListModulesPage(ctx, offset, perPage)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	details := make([]*model.ModuleDetail, 0, len(modules))
	for _, m := range modules {
		d, err := loadDetail(ctx, store, m)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return &Page{Data: details, Meta: model.NewPageMeta(total, perPage, page)}, nil
}

func loadDetail(ctx context.Context, store Store, m *model.Module) (*model.ModuleDetail, error) {
	d := &model.ModuleDetail{Module: *m}

	if m.TeacherID != nil {
		teacher, err := store.GetUserByID(ctx, *m.TeacherID)
		if err != nil {
			return nil, fmt.Errorf("get teacher: %w", err)
		}
		d.Teacher = teacher.Summary()
	}

	students, err := store.ListActiveStudents(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	d.ActiveStudents = students
	d.ActiveStudentsCount = len(students)
	return d, nil
}
