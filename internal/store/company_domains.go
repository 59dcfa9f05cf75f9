package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// GetCompanyDomain returns the mapped domain or "" if missing.
func (d *DB) GetCompanyDomain(ctx context.Context, company string) (string, error) {
	company = normalizeCompanyKey(company)
	if company == "" {
		return "", nil
	}

	var domain string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT domain FROM company_domains WHERE company = ? LIMIT 1;`,
		company,
	).Scan(&domain)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(domain), nil
}

// UpsertCompanyDomain teaches the matcher which sender domain belongs to a company.
func (d *DB) UpsertCompanyDomain(ctx context.Context, company, domain string) error {
	company = normalizeCompanyKey(company)
	domain = normalizeDomain(domain)

	if company == "" || domain == "" {
		return nil
	}

	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO company_domains(company, domain, fetched_at)
VALUES(?,?,?)
ON CONFLICT(company) DO UPDATE SET
  domain = excluded.domain,
  fetched_at = excluded.fetched_at;
`, company, domain, formatTime(d.now()))

	return err
}

// companiesForDomain returns normalized company keys mapped to domain or any
// parent of it (mail.acme.com matches acme.com).
func (d *DB) companiesForDomain(ctx context.Context, domain string) (map[string]bool, error) {
	out := map[string]bool{}
	domain = normalizeDomain(domain)
	if domain == "" {
		return out, nil
	}

	var candidates []string
	parts := strings.Split(domain, ".")
	for i := 0; i < len(parts)-1; i++ {
		candidates = append(candidates, strings.Join(parts[i:], "."))
	}
	for _, c := range candidates {
		rows, err := d.Pool.QueryContext(ctx, `SELECT company FROM company_domains WHERE domain = ?;`, c)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var company string
			if err := rows.Scan(&company); err != nil {
				rows.Close()
				return nil, err
			}
			out[company] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func normalizeCompanyKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)
	return s
}

func normalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	return strings.Trim(s, "/")
}
