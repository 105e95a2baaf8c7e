package pg

import (
	"context"
	"database/sql"
	"errors"

	"hrportal.org/internal/hr"
)

const profileColumns = `id, email, first_name, last_name, role, department, position, status,
	manager_id, hire_date, phone, address, avatar_url, created_at,
	emergency_contact_name, emergency_contact_phone`

var profilesTable = table{
	name: "profiles",
	columns: map[string]string{
		"id":         "id",
		"email":      "email",
		"role":       "role",
		"department": "department",
		"status":     "status",
		"manager_id": "manager_id",
		"hire_date":  "hire_date",
		"last_name":  "last_name",
		"first_name": "first_name",
		"created_at": "created_at",
	},
	defaultOrder: "last_name, first_name",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (hr.Profile, error) {
	var (
		p                               hr.Profile
		role                            string
		first, last, dept, pos, status  sql.NullString
		manager, phone, address, avatar sql.NullString
		hire, created                   sql.NullTime
		contactName, contactPhone       sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Email, &first, &last, &role, &dept, &pos, &status,
		&manager, &hire, &phone, &address, &avatar, &created,
		&contactName, &contactPhone); err != nil {
		return hr.Profile{}, err
	}
	// Unknown role strings degrade to employee.
	p.Role, _ = hr.ParseRole(role)
	p.FirstName, p.LastName = first.String, last.String
	p.Department, p.Position = dept.String, pos.String
	p.Status = status.String
	if p.Status == "" {
		p.Status = hr.StatusActive
	}
	p.ManagerID = manager.String
	p.Phone, p.Address, p.AvatarURL = phone.String, address.String, avatar.String
	p.HireDate = hire.Time
	p.CreatedAt = created.Time
	p.EmergencyContactName, p.EmergencyContactPhone = contactName.String, contactPhone.String
	return p, nil
}

func (s *Store) FindProfile(ctx context.Context, id string) (hr.Profile, error) {
	if id == "" {
		return hr.Profile{}, hr.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `select `+profileColumns+` from profiles where id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		return hr.Profile{}, mapErr("profiles", err)
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context, q hr.Query) ([]hr.Profile, error) {
	query, args, err := profilesTable.build(`select `+profileColumns+` from profiles`, q, nil)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("profiles", err)
	}
	defer rows.Close()

	var out []hr.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("profiles", err)
	}
	return out, nil
}

func (s *Store) CountProfiles(ctx context.Context, filters ...hr.Filter) (int, error) {
	return s.count(ctx, profilesTable, "profiles", filters)
}

// CreateProfile mirrors a freshly registered user. An existing row wins.
func (s *Store) CreateProfile(ctx context.Context, p hr.Profile) error {
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	status := p.Status
	if status == "" {
		status = hr.StatusActive
	}
	_, err := s.db.ExecContext(ctx, `
		insert into profiles (id, email, first_name, last_name, role, department, position, status,
			manager_id, hire_date, phone, address, avatar_url)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		on conflict (id) do nothing
	`, p.ID, p.Email, nullIfEmpty(p.FirstName), nullIfEmpty(p.LastName), p.Role.String(),
		nullIfEmpty(p.Department), nullIfEmpty(p.Position), status,
		nullIfEmpty(p.ManagerID), nullTime(p.HireDate), nullIfEmpty(p.Phone),
		nullIfEmpty(p.Address), nullIfEmpty(p.AvatarURL))
	if err != nil {
		return mapErr("profiles", err)
	}
	return nil
}

// UpdateProfile writes the self-service fields of one row. Empty strings
// clear optional fields.
func (s *Store) UpdateProfile(ctx context.Context, id string, u hr.ProfileUpdate) (hr.Profile, error) {
	if id == "" {
		return hr.Profile{}, hr.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		update profiles set first_name = $2, last_name = $3, phone = $4, address = $5,
			emergency_contact_name = $6, emergency_contact_phone = $7, updated_at = now()
		where id = $1
		returning `+profileColumns,
		id, nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName), nullIfEmpty(u.Phone), nullIfEmpty(u.Address),
		nullIfEmpty(u.EmergencyContactName), nullIfEmpty(u.EmergencyContactPhone))
	p, err := scanProfile(row)
	if err != nil {
		return hr.Profile{}, mapErr("profiles", err)
	}
	return p, nil
}
