package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajinkyakothe/votingapp/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, aadhar_number, name, age, email, mobile, address, password_hash, role, has_voted, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.AadharNumber,
		&user.Name,
		&user.Age,
		&user.Email,
		&user.Mobile,
		&user.Address,
		&user.PasswordHash,
		&user.Role,
		&user.HasVoted,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	return user, err
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.AadharNumber, user.Name, user.Age, user.Email, user.Mobile,
		user.Address, user.PasswordHash, user.Role, user.HasVoted, user.CreatedAt, user.UpdatedAt)
	switch {
	case isUniqueViolation(err, "users_aadhar_number_key"):
		return model.ErrDuplicateAadhar
	case isUniqueViolation(err, "users_email_key"), isUniqueViolation(err, "users_mobile_key"):
		return model.ErrDuplicateContact
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *Store) GetUserByAadhar(ctx context.Context, aadhar string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE aadhar_number = $1`, aadhar)
	return scanUser(row)
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// SeedAdmin inserts the bootstrap admin account if its aadhar number is not
// taken yet. Existing accounts are left untouched so a seeded aadhar can
// never flip a voter into an admin.
func (s *Store) SeedAdmin(ctx context.Context, user model.User) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (aadhar_number) DO NOTHING
	`, user.ID, user.AadharNumber, user.Name, user.Age, user.Email, user.Mobile,
		user.Address, user.PasswordHash, model.RoleAdmin, false, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const candidateColumns = `id, name, party, age, vote_count, created_at, updated_at`

func scanCandidate(row pgx.Row) (model.Candidate, error) {
	var candidate model.Candidate
	err := row.Scan(
		&candidate.ID,
		&candidate.Name,
		&candidate.Party,
		&candidate.Age,
		&candidate.VoteCount,
		&candidate.CreatedAt,
		&candidate.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Candidate{}, model.ErrCandidateNotFound
	}
	return candidate, err
}

func (s *Store) CreateCandidate(ctx context.Context, candidate model.Candidate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candidates (`+candidateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, candidate.ID, candidate.Name, candidate.Party, candidate.Age,
		candidate.VoteCount, candidate.CreatedAt, candidate.UpdatedAt)
	return err
}

func (s *Store) GetCandidateByID(ctx context.Context, candidateID string) (model.Candidate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, candidateID)
	return scanCandidate(row)
}

func (s *Store) UpdateCandidate(ctx context.Context, candidate model.Candidate) (model.Candidate, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE candidates
		SET name = $2, party = $3, age = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+candidateColumns+`
	`, candidate.ID, candidate.Name, candidate.Party, candidate.Age, time.Now().UTC())
	return scanCandidate(row)
}

// DeleteCandidate removes a candidate under the given policy. With
// DeletePolicyRestrict a candidate that has recorded votes is kept and
// ErrCandidateHasVotes returned; with DeletePolicyCascade its vote records
// are dropped and the affected voters return to the unvoted state, all in
// one transaction.
func (s *Store) DeleteCandidate(ctx context.Context, candidateID, policy string) (model.Candidate, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Candidate{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1 FOR UPDATE`, candidateID)
	candidate, err := scanCandidate(row)
	if err != nil {
		return model.Candidate{}, err
	}

	if candidate.VoteCount > 0 {
		if policy != DeletePolicyCascade {
			return model.Candidate{}, model.ErrCandidateHasVotes
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET has_voted = FALSE, updated_at = $2
			WHERE id IN (SELECT voter_id FROM votes WHERE candidate_id = $1)
		`, candidateID, time.Now().UTC())
		if err != nil {
			return model.Candidate{}, err
		}
	}

	// votes rows go with the candidate via ON DELETE CASCADE.
	if _, err := tx.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, candidateID); err != nil {
		return model.Candidate{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Candidate{}, err
	}
	return candidate, nil
}

func (s *Store) ListCandidates(ctx context.Context) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+candidateColumns+` FROM candidates ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// TallyByParty returns committed vote counts ordered by count descending;
// ties break by candidate insertion order, then id, so the ranking is
// deterministic.
func (s *Store) TallyByParty(ctx context.Context) ([]model.PartyTally, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT party, vote_count FROM candidates
		ORDER BY vote_count DESC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tallies []model.PartyTally
	for rows.Next() {
		var tally model.PartyTally
		if err := rows.Scan(&tally.Party, &tally.Count); err != nil {
			return nil, err
		}
		tallies = append(tallies, tally)
	}
	return tallies, rows.Err()
}

func (s *Store) ListVotesByCandidate(ctx context.Context, candidateID string) ([]model.VoteRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, candidate_id, voter_id, voted_at FROM votes
		WHERE candidate_id = $1 ORDER BY voted_at ASC, id ASC
	`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.VoteRecord
	for rows.Next() {
		var record model.VoteRecord
		if err := rows.Scan(&record.ID, &record.CandidateID, &record.VoterID, &record.VotedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
