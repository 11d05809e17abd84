// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"strings"

	"github.com/pkg/errors"
)

// DefaultPageSize applies when ListOptions.Limit is not positive.
const DefaultPageSize = 30

// SortField names a sortable license attribute.
type SortField string

const (
	SortByKey            SortField = "key"
	SortByPlugin         SortField = "plugin"
	SortByEmail          SortField = "email"
	SortByExpiresOn      SortField = "expiresOn"
	SortByDateCreated    SortField = "dateCreated"
	SortByLastActivityOn SortField = "lastActivityOn"
	SortByNotes          SortField = "notes"
)

type sortColumn struct {
	expr     string
	nullable bool
}

var sortColumns = map[SortField]sortColumn{
	SortByKey:            {expr: "l.license_key"},
	SortByPlugin:         {expr: "p.handle"},
	SortByEmail:          {expr: "l.email"},
	SortByExpiresOn:      {expr: "l.expires_on", nullable: true},
	SortByDateCreated:    {expr: "l.date_created"},
	SortByLastActivityOn: {expr: "l.last_activity_on", nullable: true},
	SortByNotes:          {expr: "l.notes"},
}

// ParseSortField maps a request value to a SortField. An empty value means
// no explicit sort.
func ParseSortField(value string) (SortField, error) {
	field := SortField(strings.TrimSpace(value))
	if field == "" {
		return "", nil
	}
	if _, ok := sortColumns[field]; !ok {
		return "", errors.Wrapf(ErrInvalidSortField, "%q", value)
	}
	return field, nil
}

// ListOptions controls search, ordering and paging of license listings.
type ListOptions struct {
	// Search matches key, notes, plugin handle or email, case-insensitively.
	Search string
	// OrderBy is empty for natural (id) order.
	OrderBy   SortField
	Limit     int
	Page      int
	Ascending bool
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultPageSize
	}
	return o.Limit
}

func (o ListOptions) offset() int {
	if o.Page <= 1 {
		return 0
	}
	return (o.Page - 1) * o.limit()
}

// DeveloperListOptions extends ListOptions with a raw filter condition.
type DeveloperListOptions struct {
	// Condition is ANDed into the WHERE clause verbatim. Only trusted code may
	// set it; it must never carry request input.
	Condition     string
	ConditionArgs []any
	ListOptions
}

// licenseQuery accumulates WHERE predicates and their bind arguments.
type licenseQuery struct {
	where []string
	args  []any
}

func (q *licenseQuery) and(cond string, args ...any) {
	q.where = append(q.where, cond)
	q.args = append(q.args, args...)
}

func (q *licenseQuery) search(term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}

	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	q.and(`(LOWER(l.license_key) LIKE ? ESCAPE '\' OR LOWER(l.notes) LIKE ? ESCAPE '\' OR LOWER(p.handle) LIKE ? ESCAPE '\' OR LOWER(l.email) LIKE ? ESCAPE '\')`,
		pattern, pattern, pattern, pattern)
}

func (q *licenseQuery) whereClause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func orderClause(field SortField, ascending bool) (string, error) {
	if field == "" {
		return " ORDER BY l.id ASC", nil
	}

	col, ok := sortColumns[field]
	if !ok {
		return "", errors.Wrapf(ErrInvalidSortField, "%q", string(field))
	}

	direction := "DESC"
	if ascending {
		direction = "ASC"
	}

	var sb strings.Builder
	sb.WriteString(" ORDER BY ")
	if col.nullable {
		// nulls last on both engines
		sb.WriteString("(" + col.expr + " IS NULL) ASC, ")
	}
	sb.WriteString(col.expr + " " + direction + ", l.id ASC")
	return sb.String(), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
