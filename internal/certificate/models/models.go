package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
)

// Type is the kind of certificate issued.
type Type string

const (
	TypeDegree       Type = "DEGREE"
	TypeTranscript   Type = "TRANSCRIPT"
	TypeProvisional  Type = "PROVISIONAL"
	TypeBonafide     Type = "BONAFIDE"
	TypeMigration    Type = "MIGRATION"
	TypeCharacter    Type = "CHARACTER"
	TypeStudyConduct Type = "STUDY_CONDUCT"
)

var validTypes = map[Type]bool{
	TypeDegree: true, TypeTranscript: true, TypeProvisional: true, TypeBonafide: true,
	TypeMigration: true, TypeCharacter: true, TypeStudyConduct: true,
}

func (t Type) Valid() bool {
	return validTypes[t]
}

// ParseType normalizes case and whitespace.
func ParseType(s string) Type {
	return Type(strings.ToUpper(strings.TrimSpace(s)))
}

// BonafideMonths is how long a BONAFIDE certificate stays valid after issue.
const BonafideMonths = 6

// MinRevocationReason is the shortest revocation reason the ledger accepts.
const MinRevocationReason = 10

// Certificate is the on-chain certificate record. DocumentHash is the
// lowercase hex SHA-256 of exactly the bytes stored under ContentID.
type Certificate struct {
	CertificateID    string    `json:"certificateId"`
	StudentID        string    `json:"studentId"`
	Type             Type      `json:"type"`
	IssueDate        time.Time `json:"issueDate"`
	ExpiryDate       time.Time `json:"expiryDate,omitzero"`
	DocumentHash     string    `json:"pdfHash"`
	ContentID        string    `json:"ipfsHash"`
	IssuedBy         string    `json:"issuedBy"`
	Verified         bool      `json:"verified"`
	Revoked          bool      `json:"revoked"`
	RevokedBy        string    `json:"revokedBy,omitempty"`
	RevokedAt        time.Time `json:"revokedAt,omitzero"`
	RevocationReason string    `json:"revocationReason,omitempty"`
}

// Expired reports whether the certificate has a validity window that ended before now.
func (c *Certificate) Expired(now time.Time) bool {
	return !c.ExpiryDate.IsZero() && now.After(c.ExpiryDate)
}

// Outcome is the verification verdict.
type Outcome string

const (
	OutcomeVerified    Outcome = "VERIFIED"
	OutcomeNotVerified Outcome = "NOT_VERIFIED"
)

// Reason explains a verification outcome.
type Reason string

const (
	ReasonMatch        Reason = "hash_match"
	ReasonHashMismatch Reason = "hash_mismatch"
	ReasonRevoked      Reason = "revoked"
	ReasonExpired      Reason = "expired"
)

// Verification is the result of checking a presented document against the ledger.
type Verification struct {
	CertificateID string    `json:"certificateId"`
	Outcome       Outcome   `json:"outcome"`
	Reason        Reason    `json:"reason"`
	StudentID     string    `json:"studentId"`
	Type          Type      `json:"type"`
	DocumentHash  string    `json:"documentHash"`
	PresentedHash string    `json:"presentedHash"`
	CheckedAt     time.Time `json:"checkedAt"`
}

func (v *Verification) Verified() bool {
	return v.Outcome == OutcomeVerified
}

// DocumentHash returns the lowercase hex SHA-256 of data.
func DocumentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashesEqual compares two hex digests in constant time.
func HashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
