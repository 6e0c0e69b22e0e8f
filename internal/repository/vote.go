package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ajinkyakothe/votingapp/internal/model"
)

// Candidate deletion policy once votes exist.
const (
	DeletePolicyRestrict = "restrict"
	DeletePolicyCascade  = "cascade"
)

// CastVote records one vote atomically: the voter row is locked, the
// has_voted flag flips via compare-and-set, the vote record is inserted and
// the candidate counter incremented, all in a single transaction. Two
// interleaved votes by the same voter serialize on the row lock; the loser
// sees has_voted = true and gets ErrAlreadyVoted. Votes by distinct voters
// only share the candidate counter update and proceed concurrently.
func (s *Store) CastVote(ctx context.Context, voterID, candidateID string) (model.VoteRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.VoteRecord{}, err
	}
	defer tx.Rollback(ctx)

	var role string
	var hasVoted bool
	err = tx.QueryRow(ctx, `
		SELECT role, has_voted FROM users WHERE id = $1 FOR UPDATE
	`, voterID).Scan(&role, &hasVoted)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.VoteRecord{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.VoteRecord{}, err
	}

	var candidateExists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1)
	`, candidateID).Scan(&candidateExists)
	if err != nil {
		return model.VoteRecord{}, err
	}
	if !candidateExists {
		return model.VoteRecord{}, model.ErrCandidateNotFound
	}

	if role == model.RoleAdmin {
		return model.VoteRecord{}, model.ErrAdminCannotVote
	}
	if hasVoted {
		return model.VoteRecord{}, model.ErrAlreadyVoted
	}

	now := time.Now().UTC()

	// Commit point: only the transition false -> true may insert a record.
	tag, err := tx.Exec(ctx, `
		UPDATE users SET has_voted = TRUE, updated_at = $2
		WHERE id = $1 AND has_voted = FALSE
	`, voterID, now)
	if err != nil {
		return model.VoteRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.VoteRecord{}, model.ErrAlreadyVoted
	}

	record := model.VoteRecord{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		VoterID:     voterID,
		VotedAt:     now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO votes (id, candidate_id, voter_id, voted_at)
		VALUES ($1, $2, $3, $4)
	`, record.ID, record.CandidateID, record.VoterID, record.VotedAt)
	if isUniqueViolation(err, "votes_voter_id_key") {
		return model.VoteRecord{}, model.ErrAlreadyVoted
	}
	if err != nil {
		return model.VoteRecord{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE candidates SET vote_count = vote_count + 1, updated_at = $2 WHERE id = $1
	`, candidateID, now)
	if err != nil {
		return model.VoteRecord{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.VoteRecord{}, err
	}
	return record, nil
}
