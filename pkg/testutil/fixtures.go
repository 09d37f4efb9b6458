package testutil

import (
	"fmt"

	recordmodels "registrar/internal/record/models"
)

// Courses builds one 4-credit course per grade, coded prefix101, prefix102, ...
// Four or more grades satisfy the semester credit minimum.
func Courses(prefix string, grades ...string) []recordmodels.Course {
	courses := make([]recordmodels.Course, 0, len(grades))
	for i, g := range grades {
		code := fmt.Sprintf("%s%d", prefix, 101+i)
		courses = append(courses, recordmodels.Course{
			CourseCode: code,
			CourseName: "Course " + code,
			Credits:    4,
			Grade:      g,
			FacultyID:  fmt.Sprintf("FAC%02d", i+1),
		})
	}
	return courses
}

// Document returns a small PDF-like payload unique to label.
func Document(label string) []byte {
	return fmt.Appendf(nil, "%%PDF-1.7\n%% %s\n%%%%EOF\n", label)
}
