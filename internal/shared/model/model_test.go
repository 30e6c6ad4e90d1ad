package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserRole(t *testing.T) {
	tests := []struct {
		in     string
		want   UserRole
		wantOK bool
	}{
		{"admin", UserRoleAdmin, true},
		{"teacher", UserRoleTeacher, true},
		{"student", UserRoleStudent, true},
		{"old_student", UserRoleOldStudent, true},
		{"old-student", UserRoleOldStudent, true},
		{" Teacher ", UserRoleTeacher, true},
		{"superuser", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseUserRole(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestUserRolePermissions(t *testing.T) {
	assert.True(t, UserRoleStudent.CanEnrol())
	assert.False(t, UserRoleOldStudent.CanEnrol())
	assert.False(t, UserRoleTeacher.CanEnrol())
	assert.False(t, UserRoleAdmin.CanEnrol())

	assert.True(t, UserRoleStudent.CanViewHistory())
	assert.True(t, UserRoleOldStudent.CanViewHistory())
	assert.False(t, UserRoleTeacher.CanViewHistory())

	assert.True(t, UserRoleAdmin.IsAdmin())
	assert.True(t, UserRoleTeacher.IsTeacher())
	assert.True(t, UserRoleOldStudent.IsOldStudent())
	assert.False(t, UserRoleOldStudent.IsStudent())
}

func TestParseEnrolmentResult(t *testing.T) {
	tests := []struct {
		in   string
		want EnrolmentResult
		ok   bool
	}{
		{"pass", EnrolmentResultPass, true},
		{"fail", EnrolmentResultFail, true},
		{"PASS", "", false},
		{"Fail", "", false},
		{" fail ", "", false},
		{"merit", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, ok := ParseEnrolmentResult(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, r)
			}
		})
	}
}

func TestEnrolmentState(t *testing.T) {
	e := &Enrolment{EnrolledAt: time.Now()}
	assert.True(t, e.IsActive())
	assert.Equal(t, EnrolmentStateActive, e.State())

	now := time.Now()
	pass := EnrolmentResultPass
	e.CompletedAt = &now
	e.Result = &pass
	assert.False(t, e.IsActive())
	assert.Equal(t, EnrolmentStateCompleted, e.State())
}

func TestModuleCapacityAndOwnership(t *testing.T) {
	teacher := "usr-teacher"
	m := &Module{MaxStudents: 2, TeacherID: &teacher}

	assert.True(t, m.HasCapacity(1))
	assert.False(t, m.HasCapacity(2))
	assert.True(t, m.IsTaughtBy("usr-teacher"))
	assert.False(t, m.IsTaughtBy("usr-other"))

	m.TeacherID = nil
	assert.False(t, m.IsTaughtBy("usr-teacher"))
}

func TestNewPageMeta(t *testing.T) {
	tests := []struct {
		name                 string
		total, perPage, page int
		wantLast, wantOffset int
	}{
		{"empty", 0, 3, 1, 1, 0},
		{"exact", 6, 3, 2, 2, 3},
		{"partial", 7, 3, 3, 3, 6},
		{"page below one", 7, 3, 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := NewPageMeta(tt.total, tt.perPage, tt.page)
			assert.Equal(t, tt.wantLast, meta.LastPage)
			assert.Equal(t, tt.wantOffset, meta.Offset())
		})
	}
}

func TestUserPasswordHashHidden(t *testing.T) {
	u := &User{ID: "usr-1", Name: "Ada", Email: "ada@school.com", PasswordHash: "secret", Role: UserRoleStudent}
	data, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"role":"student"`)
}
