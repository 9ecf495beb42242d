package governance

import "fmt"

// CheckTwoPersonApproval validates an export approval set against the quorum
// and qualification rules. Votes by the requester never count, nor do
// rejections. Quorum failure is reported before qualification failure so the
// user sees the more actionable message first.
func CheckTwoPersonApproval(votes []ApprovalVote, requesterID string, settings Settings) Decision {
	if !settings.RequireTwoPersonExportApproval {
		return Allow()
	}

	seen := make(map[string]struct{}, len(votes))
	var eligible []ApprovalVote
	for _, v := range votes {
		if !v.Approved || v.ApproverID == requesterID {
			continue
		}
		if _, dup := seen[v.ApproverID]; dup {
			continue
		}
		seen[v.ApproverID] = struct{}{}
		eligible = append(eligible, v)
	}

	if len(eligible) < 2 {
		return Deny(CodeTwoPersonApprovalRequired,
			fmt.Sprintf("export requires two approvals, have %d", len(eligible)))
	}
	for _, v := range eligible {
		if privilegedApprover(v.RoleName) {
			return Allow()
		}
	}
	return Deny(CodeTwoPersonApprovalNeedsDPO,
		"at least one approver must be a DPO or tenant admin")
}
