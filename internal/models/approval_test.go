package models

import (
	"testing"
	"time"
)

func TestApprovalEffectiveStatus(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name      string
		status    string
		expiresAt time.Time
		want      string
	}{
		{"pending до срока", ApprovalStatusPending, now.Add(time.Hour), ApprovalStatusPending},
		{"pending после срока", ApprovalStatusPending, now.Add(-time.Hour), ApprovalStatusExpired},
		{"approved срок не трогает", ApprovalStatusApproved, now.Add(-time.Hour), ApprovalStatusApproved},
		{"changes_requested срок не трогает", ApprovalStatusChangesRequested, now.Add(-time.Hour), ApprovalStatusChangesRequested},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &Approval{Status: tc.status, ExpiresAt: tc.expiresAt}
			if got := a.EffectiveStatus(now); got != tc.want {
				t.Fatalf("ожидался статус %q, получили %q", tc.want, got)
			}
		})
	}
}

func TestApprovalIsOpen(t *testing.T) {
	now := time.Now().UTC()

	open := &Approval{Status: ApprovalStatusPending, ExpiresAt: now.Add(time.Hour)}
	if !open.IsOpen(now) {
		t.Fatalf("открытое согласование должно принимать ответ")
	}

	expired := &Approval{Status: ApprovalStatusPending, ExpiresAt: now.Add(-time.Minute)}
	if expired.IsOpen(now) {
		t.Fatalf("просроченное согласование не должно принимать ответ")
	}

	answered := &Approval{Status: ApprovalStatusApproved, ExpiresAt: now.Add(time.Hour)}
	if answered.IsOpen(now) {
		t.Fatalf("согласование с ответом не должно принимать новый ответ")
	}
}
