// Package memledger is an in-process implementation of the academic-records
// contract. It backs the "memory" ledger mode for local development and the
// service tests, enforcing the same uniqueness, existence and access rules
// as the deployed contract.
package memledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	certmodels "registrar/internal/certificate/models"
	"registrar/internal/ledger"
	recordmodels "registrar/internal/record/models"
	studentmodels "registrar/internal/student/models"
)

// MSP IDs recognized by the contract's access rules.
const (
	RegistrarMSP   = "NITWarangalMSP"
	DepartmentsMSP = "DepartmentsMSP"
	VerifiersMSP   = "VerifiersMSP"
)

// Caller is the identity a transaction runs as.
type Caller struct {
	ID    string
	MSPID string
}

// Interceptor runs before every invocation. A non-nil error is returned to
// the caller instead of executing the operation; used to inject faults.
type Interceptor func(ctx context.Context, mode, operation string) error

// Ledger is the world state. Safe for concurrent use; submits are serialized.
type Ledger struct {
	mu           sync.RWMutex
	students     map[string]studentmodels.Student
	records      map[string]recordmodels.AcademicRecord
	certificates map[string]certmodels.Certificate

	now         func() time.Time
	interceptor Interceptor
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func WithInterceptor(fn Interceptor) Option {
	return func(l *Ledger) {
		l.interceptor = fn
	}
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		students:     make(map[string]studentmodels.Student),
		records:      make(map[string]recordmodels.AcademicRecord),
		certificates: make(map[string]certmodels.Certificate),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetInterceptor replaces the fault-injection hook.
func (l *Ledger) SetInterceptor(fn Interceptor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interceptor = fn
}

type handler struct {
	write bool
	arity int
	fn    func(l *Ledger, c Caller, args []string) ([]byte, error)
}

var operations = map[string]handler{
	"CreateStudent":             {true, 7, (*Ledger).createStudent},
	"GetStudent":                {false, 1, (*Ledger).getStudent},
	"GetAllStudents":            {false, 0, (*Ledger).getAllStudents},
	"UpdateStudentStatus":       {true, 3, (*Ledger).updateStudentStatus},
	"UpdateStudentContactInfo":  {true, 3, (*Ledger).updateStudentContact},
	"CreateAcademicRecord":      {true, 6, (*Ledger).createAcademicRecord},
	"GetAcademicRecord":         {false, 1, (*Ledger).getAcademicRecord},
	"ApproveAcademicRecord":     {true, 1, (*Ledger).approveAcademicRecord},
	"GetStudentHistory":         {false, 1, (*Ledger).getStudentHistory},
	"IssueCertificate":          {true, 5, (*Ledger).issueCertificate},
	"GetCertificate":            {false, 1, (*Ledger).getCertificate},
	"VerifyCertificate":         {false, 2, (*Ledger).verifyCertificate},
	"RevokeCertificate":         {true, 2, (*Ledger).revokeCertificate},
	"GetCertificatesByStudent":  {false, 1, (*Ledger).getCertificatesByStudent},
	"QueryStudentsByDepartment": {false, 3, (*Ledger).queryStudentsByDepartment},
	"QueryStudentsByYear":       {false, 3, (*Ledger).queryStudentsByYear},
	"QueryStudentsByStatus":     {false, 3, (*Ledger).queryStudentsByStatus},
	"QueryRecordsBySemester":    {false, 3, (*Ledger).queryRecordsBySemester},
	"QueryRecordsByStatus":      {false, 3, (*Ledger).queryRecordsByStatus},
	"QueryPendingRecords":       {false, 2, (*Ledger).queryPendingRecords},
}

// Submit executes a write (or read) operation and commits its effects.
func (l *Ledger) Submit(ctx context.Context, c Caller, operation string, args ...string) ([]byte, error) {
	return l.invoke(ctx, c, "submit", operation, args)
}

// Evaluate executes a read-only operation.
func (l *Ledger) Evaluate(ctx context.Context, c Caller, operation string, args ...string) ([]byte, error) {
	return l.invoke(ctx, c, "evaluate", operation, args)
}

func (l *Ledger) invoke(ctx context.Context, c Caller, mode, operation string, args []string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	intercept := l.interceptor
	l.mu.RUnlock()
	if intercept != nil {
		if err := intercept(ctx, mode, operation); err != nil {
			return nil, err
		}
	}

	h, ok := operations[operation]
	if !ok {
		return nil, reject(operation, "function %s not found", operation)
	}
	if len(args) != h.arity {
		return nil, reject(operation, "incorrect number of params: expected %d, received %d", h.arity, len(args))
	}
	if h.write && mode == "evaluate" {
		return nil, reject(operation, "%s modifies state and must be submitted", operation)
	}

	if h.write {
		l.mu.Lock()
		defer l.mu.Unlock()
	} else {
		l.mu.RLock()
		defer l.mu.RUnlock()
	}
	return h.fn(l, c, args)
}

func reject(operation, format string, a ...any) error {
	return ledger.NewError(ledger.CategoryTransaction, operation, fmt.Sprintf(format, a...), nil)
}

func requireMSP(operation string, c Caller, allowed ...string) error {
	for _, msp := range allowed {
		if c.MSPID == msp {
			return nil
		}
	}
	return reject(operation, "unauthorized: only %v can perform this operation", allowed)
}

// departmentReader rejects verifier organizations from student and record data.
func departmentReader(operation string, c Caller) error {
	return requireMSP(operation, c, RegistrarMSP, DepartmentsMSP)
}

func marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func atoi(operation, field, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, reject(operation, "invalid %s %q", field, s)
	}
	return n, nil
}

// ---- students ----

func (l *Ledger) createStudent(c Caller, a []string) ([]byte, error) {
	const op = "CreateStudent"
	if err := requireMSP(op, c, RegistrarMSP); err != nil {
		return nil, err
	}
	roll, name, dept, email, aadhaar, category := a[0], a[1], a[2], a[4], a[5], a[6]
	year, err := atoi(op, "enrollment year", a[3])
	if err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, reject(op, "invalid email format")
	}
	if year < 1950 || year > l.now().Year()+1 {
		return nil, reject(op, "invalid enrollment year %d", year)
	}
	if len(name) < 3 || len(name) > 100 {
		return nil, reject(op, "name must be between 3 and 100 characters")
	}
	if len(roll) < 5 || len(roll) > 20 {
		return nil, reject(op, "roll number must be between 5 and 20 characters")
	}
	if _, exists := l.students[roll]; exists {
		return nil, reject(op, "student with roll number %s already exists", roll)
	}
	ts := l.now().UTC()
	l.students[roll] = studentmodels.Student{
		StudentID:         roll,
		RollNumber:        roll,
		Name:              name,
		Department:        dept,
		EnrollmentYear:    year,
		Email:             email,
		AadhaarHash:       aadhaar,
		AdmissionCategory: category,
		Status:            studentmodels.StatusActive,
		CreatedBy:         c.ID,
		CreatedAt:         ts,
		ModifiedBy:        c.ID,
		ModifiedAt:        ts,
	}
	return nil, nil
}

func (l *Ledger) getStudent(c Caller, a []string) ([]byte, error) {
	const op = "GetStudent"
	if err := departmentReader(op, c); err != nil {
		return nil, err
	}
	s, ok := l.students[a[0]]
	if !ok {
		return nil, reject(op, "student %s does not exist", a[0])
	}
	return marshal(s)
}

func (l *Ledger) getAllStudents(c Caller, _ []string) ([]byte, error) {
	if err := departmentReader("GetAllStudents", c); err != nil {
		return nil, err
	}
	return marshal(l.sortedStudents(func(studentmodels.Student) bool { return true }))
}

func (l *Ledger) updateStudentStatus(c Caller, a []string) ([]byte, error) {
	const op = "UpdateStudentStatus"
	if err := requireMSP(op, c, RegistrarMSP); err != nil {
		return nil, err
	}
	roll, status, reason := a[0], studentmodels.Status(a[1]), a[2]
	if !status.Valid() {
		return nil, reject(op, "invalid status '%s'", status)
	}
	s, ok := l.students[roll]
	if !ok {
		return nil, reject(op, "student %s does not exist", roll)
	}
	if status.RequiresReason() && reason == "" {
		return nil, reject(op, "reason required for status change to %s", status)
	}
	s.Status = status
	s.ModifiedBy = c.ID
	s.ModifiedAt = l.now().UTC()
	l.students[roll] = s
	return nil, nil
}

func (l *Ledger) updateStudentContact(c Caller, a []string) ([]byte, error) {
	const op = "UpdateStudentContactInfo"
	if err := requireMSP(op, c, RegistrarMSP); err != nil {
		return nil, err
	}
	s, ok := l.students[a[0]]
	if !ok {
		return nil, reject(op, "student %s does not exist", a[0])
	}
	if a[1] != "" {
		s.Phone = a[1]
	}
	if a[2] != "" {
		s.PersonalEmail = a[2]
	}
	s.ModifiedBy = c.ID
	s.ModifiedAt = l.now().UTC()
	l.students[a[0]] = s
	return nil, nil
}

// ---- academic records ----

func (l *Ledger) createAcademicRecord(c Caller, a []string) ([]byte, error) {
	const op = "CreateAcademicRecord"
	if err := requireMSP(op, c, RegistrarMSP, DepartmentsMSP); err != nil {
		return nil, err
	}
	recordID, roll, dept, coursesJSON := a[0], a[1], a[4], a[5]
	semester, err := atoi(op, "semester", a[2])
	if err != nil {
		return nil, err
	}
	if _, exists := l.records[recordID]; exists {
		return nil, reject(op, "academic record %s already exists", recordID)
	}
	if _, ok := l.students[roll]; !ok {
		return nil, reject(op, "student %s does not exist", roll)
	}
	if semester < recordmodels.MinSemester || semester > recordmodels.MaxSemester {
		return nil, reject(op, "semester must be between %d and %d", recordmodels.MinSemester, recordmodels.MaxSemester)
	}
	var courses []recordmodels.Course
	if err := json.Unmarshal([]byte(coursesJSON), &courses); err != nil {
		return nil, reject(op, "failed to parse courses: %v", err)
	}
	if len(courses) == 0 {
		return nil, reject(op, "at least one course is required")
	}
	for i, course := range courses {
		if n := len(course.CourseCode); n < recordmodels.MinCourseCodeLength || n > recordmodels.MaxCourseCodeLength {
			return nil, reject(op, "course %d: invalid course code length", i+1)
		}
		if course.Credits < recordmodels.MinCourseCredits || course.Credits > recordmodels.MaxCourseCredits {
			return nil, reject(op, "course %d (%s): credits must be between %.1f and %.1f",
				i+1, course.CourseCode, recordmodels.MinCourseCredits, recordmodels.MaxCourseCredits)
		}
		if _, ok := recordmodels.GradePoints[course.Grade]; !ok {
			return nil, reject(op, "course %d (%s): invalid grade '%s'", i+1, course.CourseCode, course.Grade)
		}
	}
	credits, sgpa := recordmodels.Grade(courses)
	if credits < recordmodels.MinSemesterCredits || credits > recordmodels.MaxSemesterCredits {
		return nil, reject(op, "total semester credits %.1f out of range", credits)
	}
	l.records[recordID] = recordmodels.AcademicRecord{
		RecordID:     recordID,
		StudentID:    roll,
		Department:   dept,
		Semester:     semester,
		Courses:      courses,
		TotalCredits: credits,
		SGPA:         sgpa,
		Timestamp:    l.now().UTC(),
		SubmittedBy:  c.ID,
		Status:       recordmodels.StatusDraft,
	}
	return nil, nil
}

func (l *Ledger) getAcademicRecord(c Caller, a []string) ([]byte, error) {
	const op = "GetAcademicRecord"
	if err := departmentReader(op, c); err != nil {
		return nil, err
	}
	r, ok := l.records[a[0]]
	if !ok {
		return nil, reject(op, "record %s does not exist", a[0])
	}
	return marshal(r)
}

func (l *Ledger) approveAcademicRecord(c Caller, a []string) ([]byte, error) {
	const op = "ApproveAcademicRecord"
	if err := requireMSP(op, c, RegistrarMSP); err != nil {
		return nil, err
	}
	r, ok := l.records[a[0]]
	if !ok {
		return nil, reject(op, "record %s does not exist", a[0])
	}
	if r.Status == recordmodels.StatusApproved {
		return nil, reject(op, "record %s is already approved", a[0])
	}
	r.Status = recordmodels.StatusApproved
	r.ApprovedBy = c.ID
	l.records[a[0]] = r

	var credits, points float64
	for _, other := range l.records {
		if other.StudentID == r.StudentID && other.Status == recordmodels.StatusApproved && other.Semester <= r.Semester {
			credits += other.TotalCredits
			points += other.SGPA * other.TotalCredits
		}
	}
	if credits > 0 {
		r.CGPA = points / credits
	}
	l.records[a[0]] = r
	return nil, nil
}

func (l *Ledger) getStudentHistory(c Caller, a []string) ([]byte, error) {
	if err := departmentReader("GetStudentHistory", c); err != nil {
		return nil, err
	}
	return marshal(l.sortedRecords(func(r recordmodels.AcademicRecord) bool { return r.StudentID == a[0] }))
}

// ---- certificates ----

func (l *Ledger) issueCertificate(c Caller, a []string) ([]byte, error) {
	const op = "IssueCertificate"
	if err := requireMSP(op, c, RegistrarMSP); err != nil {
		return nil, err
	}
	id, studentID, typ, docHash, cid := a[0], a[1], certmodels.Type(a[2]), a[3], a[4]
	if !typ.Valid() {
		return nil, reject(op, "invalid certificate type '%s'", typ)
	}
	if _, exists := l.certificates[id]; exists {
		return nil, reject(op, "certificate %s already exists", id)
	}
	if _, ok := l.students[studentID]; !ok {
		return nil, reject(op, "student %s does not exist", studentID)
	}
	issued := l.now().UTC()
	cert := certmodels.Certificate{
		CertificateID: id,
		StudentID:     studentID,
		Type:          typ,
		IssueDate:     issued,
		DocumentHash:  docHash,
		ContentID:     cid,
		IssuedBy:      c.ID,
		Verified:      true,
	}
	if typ == certmodels.TypeBonafide {
		cert.ExpiryDate = issued.AddDate(0, certmodels.BonafideMonths, 0)
	}
	l.certificates[id] = cert
	return nil, nil
}

func (l *Ledger) getCertificate(_ Caller, a []string) ([]byte, error) {
	cert, ok := l.certificates[a[0]]
	if !ok {
		return nil, reject("GetCertificate", "certificate %s does not exist", a[0])
	}
	if cert.Expired(l.now()) {
		cert.Verified = false
	}
	return marshal(cert)
}

func (l *Ledger) verifyCertificate(_ Caller, a []string) ([]byte, error) {
	const op = "VerifyCertificate"
	cert, ok := l.certificates[a[0]]
	if !ok {
		return nil, reject(op, "certificate %s does not exist", a[0])
	}
	if cert.Revoked {
		return nil, reject(op, "certificate has been revoked: %s", cert.RevocationReason)
	}
	if cert.Expired(l.now()) {
		return nil, reject(op, "certificate has expired on %s", cert.ExpiryDate.Format(time.DateOnly))
	}
	return marshal(cert.DocumentHash == a[1])
}

func (l *Ledger) revokeCertificate(c Caller, a []string) ([]byte, error) {
	const op = "RevokeCertificate"
	if err := requireMSP(op, c, RegistrarMSP); err != nil {
		return nil, err
	}
	cert, ok := l.certificates[a[0]]
	if !ok {
		return nil, reject(op, "certificate %s does not exist", a[0])
	}
	if cert.Revoked {
		return nil, reject(op, "certificate %s is already revoked", a[0])
	}
	if len(a[1]) < certmodels.MinRevocationReason {
		return nil, reject(op, "revocation reason must be at least %d characters", certmodels.MinRevocationReason)
	}
	cert.Revoked = true
	cert.Verified = false
	cert.RevokedBy = c.ID
	cert.RevokedAt = l.now().UTC()
	cert.RevocationReason = a[1]
	l.certificates[a[0]] = cert
	return nil, nil
}

func (l *Ledger) getCertificatesByStudent(_ Caller, a []string) ([]byte, error) {
	out := make([]certmodels.Certificate, 0)
	for _, cert := range l.certificates {
		if cert.StudentID == a[0] {
			out = append(out, cert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CertificateID < out[j].CertificateID })
	return marshal(out)
}

// ---- paginated queries ----

func (l *Ledger) queryStudentsByDepartment(c Caller, a []string) ([]byte, error) {
	return l.studentPage("QueryStudentsByDepartment", c, a[1], a[2], func(s studentmodels.Student) bool {
		return s.Department == a[0]
	})
}

func (l *Ledger) queryStudentsByYear(c Caller, a []string) ([]byte, error) {
	const op = "QueryStudentsByYear"
	year, err := atoi(op, "year", a[0])
	if err != nil {
		return nil, err
	}
	return l.studentPage(op, c, a[1], a[2], func(s studentmodels.Student) bool { return s.EnrollmentYear == year })
}

func (l *Ledger) queryStudentsByStatus(c Caller, a []string) ([]byte, error) {
	const op = "QueryStudentsByStatus"
	if !studentmodels.Status(a[0]).Valid() {
		return nil, reject(op, "invalid status '%s'", a[0])
	}
	return l.studentPage(op, c, a[1], a[2], func(s studentmodels.Student) bool { return string(s.Status) == a[0] })
}

func (l *Ledger) queryRecordsBySemester(c Caller, a []string) ([]byte, error) {
	const op = "QueryRecordsBySemester"
	sem, err := atoi(op, "semester", a[0])
	if err != nil {
		return nil, err
	}
	return l.recordPage(op, c, a[1], a[2], func(r recordmodels.AcademicRecord) bool { return r.Semester == sem })
}

func (l *Ledger) queryRecordsByStatus(c Caller, a []string) ([]byte, error) {
	return l.recordPage("QueryRecordsByStatus", c, a[1], a[2], func(r recordmodels.AcademicRecord) bool {
		return string(r.Status) == a[0]
	})
}

func (l *Ledger) queryPendingRecords(c Caller, a []string) ([]byte, error) {
	return l.recordPage("QueryPendingRecords", c, a[0], a[1], func(r recordmodels.AcademicRecord) bool {
		return r.Status == recordmodels.StatusDraft || r.Status == recordmodels.StatusSubmitted
	})
}

func (l *Ledger) studentPage(op string, c Caller, bookmark, size string, keep func(studentmodels.Student) bool) ([]byte, error) {
	if err := departmentReader(op, c); err != nil {
		return nil, err
	}
	all := l.sortedStudents(keep)
	return paginate(op, all, bookmark, size, func(s studentmodels.Student) string { return s.StudentID })
}

func (l *Ledger) recordPage(op string, c Caller, bookmark, size string, keep func(recordmodels.AcademicRecord) bool) ([]byte, error) {
	if err := departmentReader(op, c); err != nil {
		return nil, err
	}
	all := l.sortedRecords(keep)
	return paginate(op, all, bookmark, size, func(r recordmodels.AcademicRecord) string { return r.RecordID })
}

// paginate returns items whose key sorts after bookmark. The returned
// bookmark is the last key of the page, empty on the final page.
func paginate[T any](op string, sorted []T, bookmark, size string, key func(T) string) ([]byte, error) {
	n, err := atoi(op, "page size", size)
	if err != nil {
		return nil, err
	}
	n = ledger.NormalizePageSize(n)
	start := 0
	if bookmark != "" {
		start = sort.Search(len(sorted), func(i int) bool { return strings.Compare(key(sorted[i]), bookmark) > 0 })
	}
	end := min(start+n, len(sorted))
	page := ledger.Page[T]{Records: sorted[start:end], RecordCount: end - start}
	if end < len(sorted) {
		page.Bookmark = key(sorted[end-1])
		page.HasMore = true
	}
	return marshal(page)
}

func (l *Ledger) sortedStudents(keep func(studentmodels.Student) bool) []studentmodels.Student {
	out := make([]studentmodels.Student, 0, len(l.students))
	for _, s := range l.students {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (l *Ledger) sortedRecords(keep func(recordmodels.AcademicRecord) bool) []recordmodels.AcademicRecord {
	out := make([]recordmodels.AcademicRecord, 0)
	for _, r := range l.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}
