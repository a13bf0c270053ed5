// Package auth provides authentication and authorization building blocks
package auth

import (
	"context"

	"github.com/coursehub/asset-service/internal/auth/middleware"
	"github.com/coursehub/asset-service/internal/auth/service"
)

// RoleAccessChecker authorizes asset access from the role claim of the
// authenticated request. Instructors and admins may manage course
// assets; any authenticated user may view published ones. Deployments
// with per-course ownership or enrollment records swap in a checker
// backed by the course service instead.
type RoleAccessChecker struct{}

// NewRoleAccessChecker creates a role-claim based access checker
func NewRoleAccessChecker() *RoleAccessChecker {
	return &RoleAccessChecker{}
}

// CanManage reports whether the requester may upload or replace assets
// of the course
func (c *RoleAccessChecker) CanManage(ctx context.Context, userID int, courseID string) (bool, error) {
	role, ok := middleware.GetUserRole(ctx)
	if !ok {
		return false, nil
	}
	return role >= service.RoleTeacher, nil
}

// CanView reports whether the requester may download assets of the course
func (c *RoleAccessChecker) CanView(ctx context.Context, userID int, courseID string) (bool, error) {
	role, ok := middleware.GetUserRole(ctx)
	if !ok {
		return false, nil
	}
	return role >= service.RoleStudent, nil
}
