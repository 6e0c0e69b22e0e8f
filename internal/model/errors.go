package model

import "errors"

// Domain errors returned by the repository. Handlers map these to HTTP
// statuses with errors.Is.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrDuplicateAadhar   = errors.New("aadhar number already registered")
	ErrDuplicateContact  = errors.New("email or mobile already registered")
	ErrAlreadyVoted      = errors.New("voter has already voted")
	ErrAdminCannotVote   = errors.New("admin accounts cannot vote")
	ErrCandidateHasVotes = errors.New("candidate has recorded votes")
)
