package tasks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/importkit/internal/core"
	"github.com/JonMunkholm/importkit/internal/dict"
	"github.com/JonMunkholm/importkit/internal/postgres"
	"github.com/JonMunkholm/importkit/internal/rules"
)

func init() {
	Register(Users())
}

// Users imports staff accounts. The sheet carries display labels; gender is
// entered as a label and stored as its dictionary code, the department must
// already exist, and the email must be unused both inside the sheet and in
// the users table.
func Users() Definition {
	gender := dict.New(
		"Male", "1",
		"Female", "2",
	)

	return Definition{
		Key:   "users",
		Label: "Users",
		Group: "Core",
		Specs: []core.FieldSpec{
			{Name: "name", DisplayName: "Name", Rules: "required,max=50"},
			{Name: "email", DisplayName: "Email", Rules: "required,email"},
			{Name: "gender", DisplayName: "Gender", Dictionary: gender, Optional: true},
			{Name: "department", DisplayName: "Department", Rules: "required,max=100"},
			{Name: "joined_at", DisplayName: "Joined", DateFormat: "2006-01-02", Optional: true},
		},
		DuplicateKeys: [][]string{{"email"}},
		Rules:         userRules,
		Persister:     insertUsers,
	}
}

func userRules(db postgres.DBTX) ([]rules.Validator, error) {
	uniqueEmail, err := rules.NewUnique(postgres.NewStore(db, "users"), rules.Config{
		KeyGroups:    []rules.KeyGroup{rules.Key("email")},
		IgnoreFields: []string{"id"},
		Messages: map[string]string{
			"email": "is already registered, remove the row or change the address",
		},
	})
	if err != nil {
		return nil, err
	}

	departmentExists, err := rules.NewExists(postgres.NewStore(db, "departments"), rules.Config{
		KeyGroups: []rules.KeyGroup{rules.Key("department")},
		Aliases:   map[string]string{"department": "name"},
		Messages: map[string]string{
			"department": "does not exist, create the department before importing",
		},
	})
	if err != nil {
		return nil, err
	}

	return []rules.Validator{uniqueEmail, departmentExists}, nil
}

func insertUsers(db postgres.DBTX) core.Persister {
	return core.PersistFunc(func(ctx context.Context, rows []core.Row) error {
		batch := &pgx.Batch{}
		for _, row := range rows {
			batch.Queue(
				`INSERT INTO users (name, email, gender, department, joined_at)
				 VALUES ($1, $2, NULLIF($3, ''), (SELECT id FROM departments WHERE name = $4), NULLIF($5, '')::date)`,
				row.Fields["name"],
				row.Fields["email"],
				row.Fields["gender"],
				row.Fields["department"],
				row.Fields["joined_at"],
			)
		}

		br := postgres.DB(ctx, db).SendBatch(ctx, batch)
		defer br.Close()
		for _, row := range rows {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("insert user from row %d: %w", row.Line, err)
			}
		}
		return br.Close()
	})
}
