package services

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/lumen-lms/apiserver/internal/access"
	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/types"
	"github.com/xuri/excelize/v2"
)

// MaxBulkRows caps a single import.
const MaxBulkRows = 500

// BulkUserRow is one account in an import batch.
type BulkUserRow struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// BulkCreate provisions each row independently; a failing row never aborts
// the batch. An empty role defaults to the only role actor may manage.
func (s *UserService) BulkCreate(ctx context.Context, actor types.User, rows []BulkUserRow) ([]types.BulkUserResult, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("no rows to import")
	}
	if len(rows) > MaxBulkRows {
		return nil, apperr.Validation("at most %d rows can be imported at once", MaxBulkRows)
	}
	manageable := access.ManageableRoles(actor.Role)
	if len(manageable) == 0 {
		return nil, apperr.Forbidden("you cannot create users")
	}

	results := make([]types.BulkUserResult, 0, len(rows))
	created := 0
	for i, row := range rows {
		if row.Role == "" && len(manageable) == 1 {
			row.Role = string(manageable[0])
		}
		res := types.BulkUserResult{Row: i + 1, Username: strings.ToLower(strings.TrimSpace(row.Username))}
		out, err := s.Create(ctx, actor, CreateUserInput(row))
		if err != nil {
			res.Error = apperr.Message(err)
			if apperr.KindOf(err) == apperr.KindInternal {
				s.log.Error("bulk import row failed", "row", res.Row, "error", err)
			}
		} else {
			res.Success = true
			res.UserID = out.User.ID
			created++
		}
		results = append(results, res)
	}
	s.log.Info("bulk import finished", "actor_id", actor.ID, "rows", len(rows), "created", created)
	return results, nil
}

var bulkColumnAliases = map[string]string{
	"username":  "username",
	"user":      "username",
	"login":     "username",
	"email":     "email",
	"e-mail":    "email",
	"full_name": "full_name",
	"fullname":  "full_name",
	"full name": "full_name",
	"name":      "full_name",
	"role":      "role",
	"password":  "password",
}

// ParseBulkCSV reads an import batch from CSV with a header row.
func ParseBulkCSV(r io.Reader) ([]BulkUserRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.Validation("invalid csv: %v", err)
	}
	return parseBulkRecords(records)
}

// ParseBulkXLSX reads an import batch from the first sheet of a workbook.
func ParseBulkXLSX(r io.Reader) ([]BulkUserRow, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Validation("invalid spreadsheet: %v", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("spreadsheet has no sheets")
	}
	records, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Validation("invalid spreadsheet: %v", err)
	}
	return parseBulkRecords(records)
}

func parseBulkRecords(records [][]string) ([]BulkUserRow, error) {
	if len(records) == 0 {
		return nil, apperr.Validation("file is empty")
	}
	columns := make(map[string]int)
	for i, name := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := bulkColumnAliases[key]; ok {
			if _, dup := columns[canonical]; !dup {
				columns[canonical] = i
			}
		}
	}
	if _, ok := columns["username"]; !ok {
		return nil, apperr.Validation("header must include a username column")
	}

	cell := func(record []string, column string) string {
		i, ok := columns[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]BulkUserRow, 0, len(records)-1)
	for _, record := range records[1:] {
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, BulkUserRow{
			Username: cell(record, "username"),
			Email:    cell(record, "email"),
			FullName: cell(record, "full_name"),
			Role:     cell(record, "role"),
			Password: cell(record, "password"),
		})
	}
	if len(rows) == 0 {
		return nil, apperr.Validation("file has no data rows")
	}
	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
