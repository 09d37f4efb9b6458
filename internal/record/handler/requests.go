package handler

import (
	"fmt"
	"strings"

	"registrar/internal/record/models"
	"registrar/internal/record/service"
	dErrors "registrar/pkg/domain-errors"
	limits "registrar/pkg/platform/validation"
	s "registrar/pkg/string"
	"registrar/pkg/validation"
)

type CourseRequest struct {
	CourseCode string  `json:"courseCode" validate:"required"`
	CourseName string  `json:"courseName"`
	Credits    float64 `json:"credits" validate:"gt=0"`
	Grade      string  `json:"grade" validate:"required"`
	FacultyID  string  `json:"facultyId"`
}

type CreateRecordRequest struct {
	RecordID   string          `json:"recordId" validate:"required,notblank"`
	StudentID  string          `json:"studentId" validate:"required,notblank"`
	Semester   int             `json:"semester" validate:"required,min=1,max=8"`
	Year       int             `json:"year" validate:"required,min=1950"`
	Department string          `json:"department" validate:"required,notblank"`
	Courses    []CourseRequest `json:"courses" validate:"required,min=1,dive"`
}

func (r *CreateRecordRequest) Normalize() {
	if r == nil {
		return
	}
	// Identifiers are trimmed but keep their case: they are ledger keys and
	// must read back exactly as written. Grades are an enumeration.
	s.TrimStrings(&r.RecordID, &r.StudentID, &r.Department)
	for i := range r.Courses {
		c := &r.Courses[i]
		s.TrimStrings(&c.CourseCode, &c.CourseName, &c.FacultyID)
		s.UpperStrings(&c.Grade)
	}
}

func (r *CreateRecordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := limits.CheckSliceCount("courses", len(r.Courses), limits.MaxCourses); err != nil {
		return err
	}
	if err := limits.CheckStringLength("recordId", r.RecordID, limits.MaxIDLength); err != nil {
		return err
	}
	codes := make([]string, 0, len(r.Courses))
	for _, c := range r.Courses {
		codes = append(codes, c.CourseCode)
	}
	if err := limits.CheckEachStringLength("courseCode", codes, limits.MaxCourseCodeLength); err != nil {
		return err
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		key := strings.ToUpper(code)
		if seen[key] {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("course %s listed twice", code))
		}
		seen[key] = true
	}
	return nil
}

func (r *CreateRecordRequest) toCommand() service.CreateCommand {
	courses := make([]models.Course, 0, len(r.Courses))
	for _, c := range r.Courses {
		courses = append(courses, models.Course{
			CourseCode: c.CourseCode,
			CourseName: c.CourseName,
			Credits:    c.Credits,
			Grade:      c.Grade,
			FacultyID:  c.FacultyID,
		})
	}
	return service.CreateCommand{
		RecordID:   r.RecordID,
		StudentID:  r.StudentID,
		Semester:   r.Semester,
		Year:       r.Year,
		Department: r.Department,
		Courses:    courses,
	}
}
