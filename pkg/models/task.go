package models

import "time"

// Task is a social_media_post row: an external action that rewards points
type Task struct {
	ID           int64      `json:"id" db:"id"`
	Caption      string     `json:"caption" db:"caption"`
	Description  string     `json:"description" db:"description"`
	Points       int        `json:"points" db:"points"`
	Thumbnail    string     `json:"thumbnail" db:"thumbnail"`
	LinkURL      string     `json:"link_url" db:"link_url"`
	Deadline     *time.Time `json:"deadline" db:"deadline"`
	ScopeMembers int        `json:"scope_members" db:"scope_members"`
	IsHidden     bool       `json:"is_hidden" db:"is_hidden"`
	IsFixed      bool       `json:"is_fixed" db:"is_fixed"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Reward 返回任务奖励积分，负数按0处理
func (t Task) Reward() int {
	if t.Points < 0 {
		return 0
	}
	return t.Points
}

// ExpiredAt reports whether the deadline has been reached at now.
// A deadline equal to now counts as expired.
func (t Task) ExpiredAt(now time.Time) bool {
	if t.Deadline == nil {
		return false
	}
	return !now.Before(*t.Deadline)
}

// VisibleTo 判断任务是否面向该成员类型
// scope_members 为0时面向所有人，否则要求成员类型不低于该值
func (t Task) VisibleTo(memberType MemberType) bool {
	if t.ScopeMembers <= 0 {
		return true
	}
	return int(memberType) >= t.ScopeMembers
}

// TaskCompletion records that a member completed a task
type TaskCompletion struct {
	PostID      int64     `json:"post_id" db:"post_id"`
	MemberID    string    `json:"member_id" db:"member_id"`
	Points      int       `json:"points" db:"points"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// CompleteTaskResponse is returned by POST /api/tasks/{id}/complete
type CompleteTaskResponse struct {
	TaskID        int64 `json:"task_id"`
	PointsAwarded int   `json:"points_awarded"`
	Duplicate     bool  `json:"duplicate"`
	Balance       int   `json:"balance"`
}
