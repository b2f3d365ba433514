package exporter

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/csvutil"
	"github.com/opsdeskhq/opsdesk/internal/domain"
)

// errWrite marks failures in CSV generation so the handler can pick the
// matching sanitized message.
var errWrite = errors.New("csv generation failed")

// Default column sets, used when the job parameters select no columns.
var (
	defaultTicketColumns = []string{
		"id", "subject", "status", "priority",
		"requester_id", "assignee_id", "due_at", "tags", "created_at",
	}
	defaultContactColumns = []string{
		"id", "name", "email", "phones", "tags", "company_id", "created_at",
	}
)

// Exportable column sets per entity. Requests naming any other column are
// rejected before the first query runs.
var (
	ticketColumnSet = map[string]bool{
		"id": true, "subject": true, "status": true, "priority": true,
		"requester_id": true, "assignee_id": true, "due_at": true,
		"tags": true, "created_at": true, "updated_at": true,
	}
	contactColumnSet = map[string]bool{
		"id": true, "name": true, "email": true, "phones": true,
		"tags": true, "company_id": true, "created_at": true, "updated_at": true,
	}
)

// resolveColumns validates the requested column selection against the known
// set, falling back to the default set when none was requested.
func resolveColumns(requested, defaults []string, known map[string]bool) ([]string, error) {
	if len(requested) == 0 {
		return defaults, nil
	}
	for _, col := range requested {
		if !known[col] {
			return nil, fmt.Errorf("unknown export column %q", col)
		}
	}
	return requested, nil
}

func ticketRow(t *domain.Ticket, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		switch col {
		case "id":
			row[i] = strconv.FormatInt(t.ID, 10)
		case "subject":
			row[i] = t.Subject
		case "status":
			row[i] = string(t.Status)
		case "priority":
			row[i] = t.Priority
		case "requester_id":
			row[i] = strconv.FormatInt(t.RequesterID, 10)
		case "assignee_id":
			row[i] = strconv.FormatInt(t.AssigneeID, 10)
		case "due_at":
			row[i] = formatTimePtr(t.DueAt)
		case "tags":
			row[i] = csvutil.JoinMulti(t.Tags)
		case "created_at":
			row[i] = t.CreatedAt.UTC().Format(time.RFC3339)
		case "updated_at":
			row[i] = t.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	return row
}

func contactRow(c *domain.Contact, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		switch col {
		case "id":
			row[i] = strconv.FormatInt(c.ID, 10)
		case "name":
			row[i] = c.Name
		case "email":
			row[i] = c.Email
		case "phones":
			row[i] = csvutil.JoinMulti(c.Phones)
		case "tags":
			row[i] = csvutil.JoinMulti(c.Tags)
		case "company_id":
			if c.CompanyID != nil {
				row[i] = strconv.FormatInt(*c.CompanyID, 10)
			}
		case "created_at":
			row[i] = c.CreatedAt.UTC().Format(time.RFC3339)
		case "updated_at":
			row[i] = c.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}
	return row
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
