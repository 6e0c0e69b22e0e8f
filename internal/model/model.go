package model

import "time"

const (
	RoleCitizen = "citizen"
	RoleAdmin   = "admin"
)

type User struct {
	ID           string
	AadharNumber string
	Name         string
	Age          int
	Email        *string
	Mobile       *string
	Address      string
	PasswordHash string
	Role         string
	HasVoted     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Candidate struct {
	ID        string
	Name      string
	Party     string
	Age       int
	VoteCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoteRecord is immutable once written; there is no update or delete path.
type VoteRecord struct {
	ID          string
	CandidateID string
	VoterID     string
	VotedAt     time.Time
}

type PartyTally struct {
	Party string
	Count int
}
