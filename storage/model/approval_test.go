package model

import (
	"testing"
	"time"
)

var (
	at          = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	coordinator = Actor{ID: "u1", Email: "coord@uni.test", Role: RoleCoordinator}
	advisor     = Actor{ID: "u2", Email: "adv@uni.test", Role: RoleAdvisor}
	student     = Actor{ID: "u3", Email: "stud@uni.test", Role: RoleStudent}
)

func pending(role Role) Approval {
	return Approval{
		ID:         "a-" + string(role),
		DocumentID: "d1",
		Role:       role,
		Status:     ApprovalPending,
	}
}

func TestNewApprovals(t *testing.T) {
	n := 0
	approvals := NewApprovals(
		"d1", func() string {
			n++
			return string(rune('a' + n))
		},
	)
	if len(approvals) != 3 {
		t.Fatalf("expected 3 approvals, got %d", len(approvals))
	}
	for i, role := range RequiredRoles() {
		a := approvals[i]
		if a.Role != role || a.Status != ApprovalPending || a.DocumentID != "d1" || a.ID == "" {
			t.Errorf("unexpected approval %+v", a)
		}
	}
}

func TestApproval_Approve(t *testing.T) {
	a := pending(RoleAdvisor)
	next, err := a.Approve(advisor, at)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if next.Status != ApprovalApproved || next.ApproverID != "u2" || next.ApproverEmail != "adv@uni.test" ||
		next.ApprovedAt == nil || !next.ApprovedAt.Equal(at) {
		t.Fatalf("unexpected approval %+v", next)
	}
	if a.Status != ApprovalPending || a.ApprovedAt != nil {
		t.Fatal("receiver was modified")
	}
	if _, err = next.Approve(advisor, at); !IsKind(err, KindAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	if _, err = a.Approve(student, at); !IsKind(err, KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestApproval_Reject(t *testing.T) {
	tests := []struct {
		name          string
		approval      Approval
		actor         Actor
		justification string
		kind          Kind
	}{
		{"blank justification", pending(RoleStudent), student, "  ", KindValidation},
		{"coordinator approval", pending(RoleCoordinator), coordinator, "no", KindForbidden},
		{"foreign role", pending(RoleStudent), advisor, "no", KindForbidden},
		{
			"already approved", Approval{ID: "x", Role: RoleStudent, Status: ApprovalApproved}, student, "no",
			KindAlreadyProcessed,
		},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				_, err := tt.approval.Reject(tt.actor, tt.justification, at)
				if got := KindOf(err); got != tt.kind {
					t.Fatalf("expected %s, got %s (%v)", tt.kind, got, err)
				}
			},
		)
	}

	next, err := pending(RoleStudent).Reject(student, "  grade is wrong ", at)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if next.Status != ApprovalRejected || next.Justification != "grade is wrong" || next.RejectedAt == nil ||
		next.ApprovedAt != nil {
		t.Fatalf("unexpected approval %+v", next)
	}
}

func TestApproval_Override(t *testing.T) {
	rejected, err := pending(RoleAdvisor).Reject(advisor, "typo", at)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err = rejected.Override(advisor, "fixed"); !IsKind(err, KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err = rejected.Override(coordinator, ""); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err = pending(RoleAdvisor).Override(coordinator, "fixed"); !IsKind(err, KindInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	next, err := rejected.Override(coordinator, "fixed")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if next.Status != ApprovalPending || next.ApproverID != "" || next.ApproverEmail != "" ||
		next.Justification != "" || next.RejectedAt != nil || next.ApprovedAt != nil {
		t.Fatalf("override did not reset the approval: %+v", next)
	}
	if rejected.Status != ApprovalRejected {
		t.Fatal("receiver was modified")
	}
}

func TestConsolidate(t *testing.T) {
	statuses := []ApprovalStatus{ApprovalPending, ApprovalApproved, ApprovalRejected}
	for _, a := range statuses {
		for _, b := range statuses {
			for _, c := range statuses {
				set := []ApprovalStatus{a, b, c}
				expected := ApprovalApproved
				for _, s := range set {
					if s == ApprovalPending {
						expected = ApprovalPending
					}
				}
				for _, s := range set {
					if s == ApprovalRejected {
						expected = ApprovalRejected
					}
				}
				if got := Consolidate(set); got != expected {
					t.Errorf("Consolidate(%v) = %s, expected %s", set, got, expected)
				}
			}
		}
	}
	if got := Consolidate(nil); got != ApprovalPending {
		t.Errorf("Consolidate(nil) = %s, expected PENDING", got)
	}
}

func TestDocument_SigningDigest(t *testing.T) {
	d := Document{MinutesHash: HashContent([]byte("minutes"))}
	if d.SigningDigest() != d.MinutesHash {
		t.Fatal("digest without evaluation must be the minutes hash")
	}
	withEval := d
	withEval.EvaluationHash = HashContent([]byte("evaluation"))
	if withEval.SigningDigest() == d.MinutesHash || withEval.SameContent(d) {
		t.Fatal("evaluation must change the digest and the content")
	}
	if d.ContentUploaded() {
		t.Fatal("document without address reported as uploaded")
	}
	d.MinutesCID = "bafk"
	withEval.MinutesCID = "bafk"
	if !d.ContentUploaded() || withEval.ContentUploaded() {
		t.Fatal("unexpected ContentUploaded")
	}
}
