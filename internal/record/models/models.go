package models

import "time"

// Status is the approval state of a semester record.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusSubmitted || s == StatusApproved
}

// Course grade points on the 10-point scale.
var GradePoints = map[string]float64{
	"S": 10, "A": 9, "B": 8, "C": 7, "D": 6, "P": 5, "U": 0, "R": 0,
}

// Semester and credit bounds.
const (
	MinSemester         = 1
	MaxSemester         = 8
	MinCourseCredits    = 0.5
	MaxCourseCredits    = 6.0
	MinSemesterCredits  = 16.0
	MaxSemesterCredits  = 30.0
	MinCourseCodeLength = 3
	MaxCourseCodeLength = 20
)

type Course struct {
	CourseCode string  `json:"courseCode"`
	CourseName string  `json:"courseName"`
	Credits    float64 `json:"credits"`
	Grade      string  `json:"grade"`
	FacultyID  string  `json:"facultyId"`
}

// AcademicRecord is one semester's results for a student.
type AcademicRecord struct {
	RecordID      string    `json:"recordId"`
	StudentID     string    `json:"studentId"`
	Department    string    `json:"department"`
	Semester      int       `json:"semester"`
	Courses       []Course  `json:"courses"`
	TotalCredits  float64   `json:"totalCredits"`
	SGPA          float64   `json:"sgpa"`
	CGPA          float64   `json:"cgpa"`
	Timestamp     time.Time `json:"timestamp"`
	SubmittedBy   string    `json:"submittedBy"`
	ApprovedBy    string    `json:"approvedBy"`
	Status        Status    `json:"status"`
	RejectionNote string    `json:"rejectionNote,omitempty"`
}

// Grade returns total credits and the credit-weighted grade point average.
func Grade(courses []Course) (credits, gpa float64) {
	var points float64
	for _, c := range courses {
		credits += c.Credits
		points += GradePoints[c.Grade] * c.Credits
	}
	if credits > 0 {
		gpa = points / credits
	}
	return credits, gpa
}
