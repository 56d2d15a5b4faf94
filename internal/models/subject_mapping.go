package models

import "time"

// SubjectMapping binds a (subject_code, exam_type) tuple to an LMS
// assignment. Unique per tuple (spec §3).
type SubjectMapping struct {
	ID                string    `db:"id" json:"id"`
	SubjectCode       string    `db:"subject_code" json:"subject_code"`
	ExamType          ExamType  `db:"exam_type" json:"exam_type"`
	MoodleCourseID    int       `db:"moodle_course_id" json:"moodle_course_id"`
	MoodleAssignmentID int      `db:"moodle_assignment_id" json:"moodle_assignment_id"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
