package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/lumen-lms/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCreateUserRoute(t *testing.T) {
	h := newAPIHarness(t)
	admin := h.login(t, "root")

	rec := h.do(t, http.MethodPost, "/api/users", admin, map[string]string{
		"username":  "tina",
		"email":     "tina@example.com",
		"full_name": "Tina Trainer",
		"role":      "trainer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["invite_sent"])
	assert.Equal(t, "trainer", body["user"].(map[string]any)["role"])
	assert.Equal(t, 1, h.outbox.count())

	rec = h.do(t, http.MethodPost, "/api/users", admin, map[string]string{
		"username":  "tina",
		"email":     "other@example.com",
		"full_name": "Tina Again",
		"role":      "trainer",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicates are a 400")
	assert.Equal(t, "Username already exists", decode(t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/users", admin, map[string]string{
		"username":  "cand",
		"email":     "cand@example.com",
		"full_name": "Candidate",
		"role":      "candidate",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "admins create trainers and crm users only")

	rec = h.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserRoutesScoped(t *testing.T) {
	h := newAPIHarness(t)
	alice := h.seedUser(t, "alice", types.RoleTrainer, &h.admin)
	bob := h.seedUser(t, "bob", types.RoleTrainer, &h.admin)
	mine := h.seedUser(t, "lena", types.RoleCandidate, &alice)
	theirs := h.seedUser(t, "ben", types.RoleCandidate, &bob)
	aliceCookie := h.login(t, "alice")

	rec := h.do(t, http.MethodGet, "/api/users", aliceCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode(t, rec)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "lena", users[0].(map[string]any)["username"])

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", mine.ID), aliceCookie, nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPatch, fmt.Sprintf("/api/users/%d", theirs.ID), aliceCookie,
		map[string]any{"full_name": "Renamed"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/users/abc", aliceCookie, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/users?active=maybe", aliceCookie, nil).Code)

	rec = h.do(t, http.MethodGet, "/api/users?active=false", aliceCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["users"])

	lena := h.login(t, "lena")
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", alice.ID), lena, nil).Code)

	rec = h.do(t, http.MethodDelete, fmt.Sprintf("/api/users/%d", mine.ID), aliceCookie, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d", mine.ID), aliceCookie, nil).Code)
}

func TestBulkImportCSVUpload(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "alice", types.RoleTrainer, &h.admin)
	alice := h.login(t, "alice")

	csv := "username,email,full_name,password\n" +
		"cara,cara@example.com,Cara,long-enough-pw\n" +
		"dan,dan@example.com,Dan,long-enough-pw\n" +
		"cara,cara2@example.com,Cara Two,long-enough-pw\n"
	rec := h.upload(t, "/api/users/bulk", alice, "users.csv", "text/csv", csv, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["created"])
	assert.EqualValues(t, 1, body["failed"])
	results := body["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, false, results[2].(map[string]any)["success"])

	rec = h.upload(t, "/api/users/bulk", alice, "users.csv", "text/csv", "email\nx@example.com\n", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "header must include a username column", decode(t, rec)["error"])
}

func TestBulkImportXLSXAndJSON(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "carl", types.RoleCRM, &h.admin)
	carl := h.login(t, "carl")

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	require.NoError(t, book.SetSheetRow(sheet, "A1", &[]string{"Username", "Email", "Full Name", "Password"}))
	require.NoError(t, book.SetSheetRow(sheet, "A2", &[]string{"olga", "olga@example.com", "Olga", "long-enough-pw"}))
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)

	rec := h.upload(t, "/api/users/bulk", carl, "people.xlsx", "application/octet-stream", buf.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["created"])

	rec = h.do(t, http.MethodPost, "/api/users/bulk", carl, map[string]any{
		"users": []map[string]string{
			{"username": "otto", "email": "otto@example.com", "full_name": "Otto", "password": "long-enough-pw"},
			{"username": "tess", "full_name": "Tess", "role": "trainer", "password": "long-enough-pw"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["created"])
	assert.EqualValues(t, 1, body["failed"])

	rec = h.do(t, http.MethodPost, "/api/users/bulk", carl, map[string]any{"users": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
