package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage/governance-mirror/governance"
)

func TestRequestDTOUsesWarehouseColumnNames(t *testing.T) {
	// GIVEN a request row
	approvedAt := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	r := governance.Request{
		ID:           5001,
		Title:        "EMEA expansion pilot",
		Amount:       decimal.RequireFromString("25000.50"),
		Status:       governance.StatusDMApproved,
		CurrentLevel: 2,
		CreatedBy:    "RCHEN",
		CreatedAt:    time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		DM: governance.ApprovalFact{
			By: "Morgan Diaz", ByTitle: "District Manager", At: &approvedAt, Comments: "ok",
		},
	}

	// WHEN serializing its DTO
	raw, err := json.Marshal(toRequestDTO(r))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	// THEN the keys match the warehouse export convention
	assert.Equal(t, float64(5001), m["REQUEST_ID"])
	assert.Equal(t, "EMEA expansion pilot", m["REQUEST_TITLE"])
	assert.Equal(t, "25000.5", m["REQUESTED_AMOUNT"], "amounts travel as strings")
	assert.Equal(t, "DM_APPROVED", m["STATUS"])
	assert.Equal(t, float64(2), m["CURRENT_APPROVAL_LEVEL"])
	assert.Equal(t, "2026-08-24T09:00:00Z", m["CREATED_AT"])

	dm, ok := m["DM_APPROVAL"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Morgan Diaz", dm["APPROVED_BY"])
	assert.Equal(t, "2026-08-24T11:00:00Z", dm["APPROVED_AT"])

	// Unset slots serialize as empty objects, and optional fields are omitted.
	assert.Equal(t, map[string]any{}, m["RD_APPROVAL"])
	assert.NotContains(t, m, "WITHDRAWN_BY")
	assert.NotContains(t, m, "NEXT_APPROVER_ID")
}

func TestStepDTOFieldMapping(t *testing.T) {
	dto := toStepDTO(governance.ApprovalStep{
		ID:                 -101,
		RequestID:          -1,
		Ordinal:            1,
		ApproverEmployeeID: 200,
		ApproverName:       "Morgan Diaz",
		Status:             governance.StepPending,
		IsFinal:            false,
	})

	assert.Equal(t, int64(-101), dto.StepID)
	assert.Equal(t, 1, dto.StepOrder)
	assert.Equal(t, "PENDING", dto.Status)
	assert.Empty(t, dto.ApprovedAt)
	assert.False(t, dto.IsFinalStep)
}

func TestCommentBodyAcceptsEitherKey(t *testing.T) {
	var b CommentBody
	require.NoError(t, json.Unmarshal([]byte(`{"COMMENTS": "from plural"}`), &b))
	assert.Equal(t, "from plural", b.text())

	b = CommentBody{}
	require.NoError(t, json.Unmarshal([]byte(`{"COMMENT": "from singular"}`), &b))
	assert.Equal(t, "from singular", b.text())

	// The plural key wins when clients send both.
	b = CommentBody{Comments: "plural", Comment: "singular"}
	assert.Equal(t, "plural", b.text())

	assert.Empty(t, CommentBody{}.text())
}

func TestRequestBodyDecodesWarehouseKeys(t *testing.T) {
	payload := `{
		"REQUEST_TITLE": "APJ lab",
		"ACCOUNT_ID": "ACC-1",
		"REQUESTED_AMOUNT": "9000.25",
		"INVESTMENT_QUARTER": "Q4",
		"THEATER": "APJ",
		"AUTO_SUBMIT": true,
		"SUBMIT_COMMENT": "go"
	}`
	var b RequestBody
	require.NoError(t, json.Unmarshal([]byte(payload), &b))

	in := toRequestInput(b)
	assert.Equal(t, "APJ lab", in.Title)
	assert.True(t, in.Amount.Equal(decimal.RequireFromString("9000.25")))
	assert.Equal(t, "Q4", in.Quarter)
	assert.True(t, in.AutoSubmit)
	assert.Equal(t, "go", in.SubmitComment)
}
