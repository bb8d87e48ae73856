package skills

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/internal/platform/db"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const skillSelect = `
    SELECT s.id, s.name, s.category, (SELECT COUNT(1) FROM user_skills us WHERE us.skill_id = s.id), s.created_at
    FROM skills s`

func scanSkill(row pgx.Row) (Skill, error) {
	var s Skill
	err := row.Scan(&s.ID, &s.Name, &s.Category, &s.UserCount, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

func (s *Store) List(ctx context.Context, category string) ([]Skill, error) {
	rows, err := s.DB.Query(ctx, skillSelect+`
    WHERE ($1 = '' OR s.category = $1)
    ORDER BY s.category, lower(s.name)
  `, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Skill{}
	for rows.Next() {
		skill, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, skillID string) (Skill, error) {
	return scanSkill(s.DB.QueryRow(ctx, skillSelect+" WHERE s.id = $1", skillID))
}

func (s *Store) Create(ctx context.Context, name, category string) (Skill, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO skills (name, category)
    VALUES ($1,$2)
    RETURNING id
  `, name, category).Scan(&id)
	if db.IsUniqueViolation(err) {
		return Skill{}, ErrNameTaken
	}
	if err != nil {
		return Skill{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, skillID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM skills WHERE id = $1", skillID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const userSkillSelect = `
    SELECT us.user_id, us.skill_id, s.name, s.category, us.proficiency, us.years_experience::float8, us.updated_at
    FROM user_skills us
    JOIN skills s ON s.id = us.skill_id`

func scanUserSkill(row pgx.Row) (UserSkill, error) {
	var us UserSkill
	err := row.Scan(&us.UserID, &us.SkillID, &us.SkillName, &us.Category, &us.Proficiency, &us.YearsExperience, &us.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return us, ErrUserSkillNotFound
	}
	return us, err
}

func collectUserSkills(rows pgx.Rows) ([]UserSkill, error) {
	defer rows.Close()
	out := []UserSkill{}
	for rows.Next() {
		us, err := scanUserSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (s *Store) ForUser(ctx context.Context, userID string) ([]UserSkill, error) {
	rows, err := s.DB.Query(ctx, userSkillSelect+" WHERE us.user_id = $1 ORDER BY us.proficiency DESC, s.name", userID)
	if err != nil {
		return nil, err
	}
	return collectUserSkills(rows)
}

func (s *Store) UserSkill(ctx context.Context, userID, skillID string) (UserSkill, error) {
	return scanUserSkill(s.DB.QueryRow(ctx, userSkillSelect+" WHERE us.user_id = $1 AND us.skill_id = $2", userID, skillID))
}

func (s *Store) Upsert(ctx context.Context, us UserSkill) (UserSkill, error) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO user_skills (user_id, skill_id, proficiency, years_experience)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (user_id, skill_id) DO UPDATE
    SET proficiency = EXCLUDED.proficiency, years_experience = EXCLUDED.years_experience, updated_at = now()
  `, us.UserID, us.SkillID, us.Proficiency, us.YearsExperience)
	if db.IsForeignKeyViolation(err) {
		return UserSkill{}, ErrNotFound
	}
	if err != nil {
		return UserSkill{}, err
	}
	return s.UserSkill(ctx, us.UserID, us.SkillID)
}

func (s *Store) Remove(ctx context.Context, userID, skillID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM user_skills WHERE user_id = $1 AND skill_id = $2", userID, skillID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserSkillNotFound
	}
	return nil
}

// Search matches active users holding all skillIDs at minProficiency or
// better, least allocated first.
func (s *Store) Search(ctx context.Context, skillIDs []string, minProficiency int, day time.Time, limit int) ([]Candidate, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT u.id, u.name, u.email, u.job_title,
           COALESCE((
             SELECT SUM(a.percentage) FROM allocations a
             WHERE a.user_id = u.id AND a.status = 'active' AND a.start_date <= $3 AND a.end_date >= $3
           ), 0)::int AS allocated
    FROM users u
    WHERE u.status = 'active'
      AND (
        SELECT COUNT(1) FROM user_skills us
        WHERE us.user_id = u.id AND us.skill_id = ANY($1::uuid[]) AND us.proficiency >= $2
      ) = cardinality($1::uuid[])
    ORDER BY allocated, u.name
    LIMIT $4
  `, skillIDs, minProficiency, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	index := map[string]int{}
	var userIDs []string
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.UserID, &c.Name, &c.Email, &c.JobTitle, &c.AllocatedPercent); err != nil {
			return nil, err
		}
		c.Skills = []UserSkill{}
		index[c.UserID] = len(out)
		userIDs = append(userIDs, c.UserID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return []Candidate{}, nil
	}

	skillRows, err := s.DB.Query(ctx, userSkillSelect+`
    WHERE us.user_id = ANY($1::uuid[]) AND us.skill_id = ANY($2::uuid[])
    ORDER BY s.name
  `, userIDs, skillIDs)
	if err != nil {
		return nil, err
	}
	matched, err := collectUserSkills(skillRows)
	if err != nil {
		return nil, err
	}
	for _, us := range matched {
		i := index[us.UserID]
		out[i].Skills = append(out[i].Skills, us)
	}
	return out, nil
}
