package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	certmodels "registrar/internal/certificate/models"
	certservice "registrar/internal/certificate/service"
	recordmodels "registrar/internal/record/models"
	recordservice "registrar/internal/record/service"
	studentmodels "registrar/internal/student/models"
	studentservice "registrar/internal/student/service"
)

// StudentCreator defines methods for seeding students
type StudentCreator interface {
	Create(ctx context.Context, cmd studentservice.CreateCommand) (*studentmodels.Student, error)
}

// RecordSeeder defines methods for seeding semester records
type RecordSeeder interface {
	Create(ctx context.Context, cmd recordservice.CreateCommand) (*recordmodels.AcademicRecord, error)
	Approve(ctx context.Context, recordID string) (*recordmodels.AcademicRecord, error)
}

// CertificateIssuer defines methods for seeding certificates
type CertificateIssuer interface {
	Issue(ctx context.Context, cmd certservice.IssueCommand) (*certmodels.Certificate, error)
}

// Seeder populates an in-memory ledger with demo data through the same
// services the API uses, so every write is audited.
type Seeder struct {
	students     StudentCreator
	records      RecordSeeder
	certificates CertificateIssuer
	logger       *slog.Logger
}

// Summary counts what SeedAll wrote.
type Summary struct {
	Students       int
	Records        int
	Certificates   int
	CertificateIDs []string
}

// New creates a new seeder
func New(students StudentCreator, records RecordSeeder, certificates CertificateIssuer, logger *slog.Logger) *Seeder {
	return &Seeder{
		students:     students,
		records:      records,
		certificates: certificates,
		logger:       logger,
	}
}

// SeedAll populates the ledger with demo data
func (s *Seeder) SeedAll(ctx context.Context) (*Summary, error) {
	s.logger.InfoContext(ctx, "seeding demo data...")

	students, err := s.seedStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed students: %w", err)
	}

	records, err := s.seedRecords(ctx, students)
	if err != nil {
		return nil, fmt.Errorf("failed to seed records: %w", err)
	}

	ids, err := s.seedCertificates(ctx, students)
	if err != nil {
		return nil, fmt.Errorf("failed to seed certificates: %w", err)
	}

	summary := &Summary{
		Students:       len(students),
		Records:        records,
		Certificates:   len(ids),
		CertificateIDs: ids,
	}
	s.logger.InfoContext(ctx, "demo data seeded successfully",
		"students", summary.Students,
		"records", summary.Records,
		"certificates", summary.Certificates,
	)
	return summary, nil
}

func (s *Seeder) seedStudents(ctx context.Context) ([]*studentmodels.Student, error) {
	demoStudents := []struct {
		roll       string
		name       string
		department string
		year       int
		category   string
	}{
		{"21CS1001", "Ananya Rao", "CSE", 2021, "GEN"},
		{"21CS1002", "Rahul Verma", "CSE", 2021, "OBC"},
		{"21EC1001", "Priya Nair", "ECE", 2021, "GEN"},
		{"22ME1001", "Karthik Reddy", "MECH", 2022, "SC"},
		{"22CE1001", "Meera Iyer", "CIVIL", 2022, "GEN"},
	}

	var students []*studentmodels.Student
	for _, d := range demoStudents {
		student, err := s.students.Create(ctx, studentservice.CreateCommand{
			StudentID:         d.roll,
			Name:              d.name,
			Department:        d.department,
			EnrollmentYear:    d.year,
			Email:             strings.ToLower(d.roll) + "@student.nitw.ac.in",
			AdmissionCategory: d.category,
		})
		if err != nil {
			return nil, err
		}
		students = append(students, student)
	}
	return students, nil
}

// seedRecords gives every student one approved first semester; the first
// student also gets a second semester left pending approval.
func (s *Seeder) seedRecords(ctx context.Context, students []*studentmodels.Student) (int, error) {
	grades := [][]string{
		{"S", "A", "A", "B"},
		{"A", "B", "B", "C"},
		{"S", "S", "A", "A"},
		{"B", "B", "C", "A"},
		{"A", "A", "B", "S"},
	}

	count := 0
	for i, st := range students {
		recordID := fmt.Sprintf("REC-%s-S1", st.StudentID)
		if _, err := s.records.Create(ctx, recordservice.CreateCommand{
			RecordID:   recordID,
			StudentID:  st.StudentID,
			Semester:   1,
			Year:       st.EnrollmentYear,
			Department: st.Department,
			Courses:    demoCourses(st.Department, 1, grades[i%len(grades)]),
		}); err != nil {
			return count, err
		}
		count++
		if _, err := s.records.Approve(ctx, recordID); err != nil {
			return count, err
		}
	}

	if len(students) > 0 {
		st := students[0]
		if _, err := s.records.Create(ctx, recordservice.CreateCommand{
			RecordID:   fmt.Sprintf("REC-%s-S2", st.StudentID),
			StudentID:  st.StudentID,
			Semester:   2,
			Year:       st.EnrollmentYear,
			Department: st.Department,
			Courses:    demoCourses(st.Department, 2, []string{"A", "A", "S", "B"}),
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func demoCourses(department string, semester int, grades []string) []recordmodels.Course {
	courses := make([]recordmodels.Course, 0, len(grades))
	for i, g := range grades {
		courses = append(courses, recordmodels.Course{
			CourseCode: fmt.Sprintf("%s%d0%d", department[:2], semester, i+1),
			CourseName: fmt.Sprintf("%s Core %d.%d", department, semester, i+1),
			Credits:    4,
			Grade:      g,
			FacultyID:  fmt.Sprintf("FAC-%s-%02d", department, i+1),
		})
	}
	return courses
}

func (s *Seeder) seedCertificates(ctx context.Context, students []*studentmodels.Student) ([]string, error) {
	types := []certmodels.Type{certmodels.TypeBonafide, certmodels.TypeTranscript}

	var ids []string
	for i, st := range students {
		if i >= len(types) {
			break
		}
		id := "CERT-" + strings.ToUpper(uuid.New().String()[:8])
		doc := fmt.Appendf(nil, "%%PDF-1.4\n%% demo %s certificate for %s (%s)\n%%%%EOF\n", types[i], st.Name, st.StudentID)
		if _, err := s.certificates.Issue(ctx, certservice.IssueCommand{
			CertificateID: id,
			StudentID:     st.StudentID,
			Type:          string(types[i]),
			Document:      doc,
		}); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
