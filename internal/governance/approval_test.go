package governance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckTwoPersonApprovalToggleOff(t *testing.T) {
	settings := DefaultSettings("t1")
	settings.RequireTwoPersonExportApproval = false
	require.True(t, CheckTwoPersonApproval(nil, "requester", settings).Allowed)
}

func TestCheckTwoPersonApprovalQuorum(t *testing.T) {
	settings := DefaultSettings("t1")

	d := CheckTwoPersonApproval(nil, "requester", settings)
	require.Equal(t, CodeTwoPersonApprovalRequired, d.Code)
	require.Contains(t, d.Reason, "have 0")

	votes := []ApprovalVote{
		{ApproverID: "a1", RoleName: "CASE_MANAGER", Approved: true},
		{ApproverID: "requester", RoleName: "DPO", Approved: true},
		{ApproverID: "a2", RoleName: "ANALYST", Approved: false},
	}
	d = CheckTwoPersonApproval(votes, "requester", settings)
	require.Equal(t, CodeTwoPersonApprovalRequired, d.Code,
		"requester self-approval and rejections never count")
	require.Contains(t, d.Reason, "have 1")

	// Duplicate approvals from the same approver count once.
	votes = append(votes, ApprovalVote{ApproverID: "a1", RoleName: "CASE_MANAGER", Approved: true})
	d = CheckTwoPersonApproval(votes, "requester", settings)
	require.Equal(t, CodeTwoPersonApprovalRequired, d.Code)
}

func TestCheckTwoPersonApprovalQualification(t *testing.T) {
	settings := DefaultSettings("t1")
	votes := []ApprovalVote{
		{ApproverID: "a1", RoleName: "CASE_MANAGER", Approved: true},
		{ApproverID: "a2", RoleName: "ANALYST", Approved: true},
	}
	d := CheckTwoPersonApproval(votes, "requester", settings)
	require.Equal(t, CodeTwoPersonApprovalNeedsDPO, d.Code)

	votes = append(votes, ApprovalVote{ApproverID: "a3", RoleName: "DPO", Approved: true})
	require.True(t, CheckTwoPersonApproval(votes, "requester", settings).Allowed,
		"adding a DPO approval flips the result")
}

func TestCheckTwoPersonApprovalPrivilegedRoles(t *testing.T) {
	settings := DefaultSettings("t1")
	for _, role := range []string{"DPO", "TENANT_ADMIN", "SUPER_ADMIN"} {
		votes := []ApprovalVote{
			{ApproverID: "a1", RoleName: "CONTRIBUTOR", Approved: true},
			{ApproverID: "a2", RoleName: role, Approved: true},
		}
		require.True(t, CheckTwoPersonApproval(votes, "requester", settings).Allowed, role)
	}
}
