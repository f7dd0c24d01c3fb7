package models

import (
	"encoding/json"
	"testing"
)

func TestHasRole(t *testing.T) {
	sub := Subject{RoleIDs: []string{"r1", "r2"}}

	if !sub.HasRole([]string{"r2", "r3"}) {
		t.Error("expected role match")
	}
	if sub.HasRole([]string{"r9"}) {
		t.Error("unexpected role match")
	}
	if sub.HasRole(nil) {
		t.Error("empty wanted list must not match")
	}
}

// An explicitly empty allow list must survive a JSON round trip as non-nil,
// because nil means "no override" during the policy merge.
func TestModelPolicyEmptyVersusAbsent(t *testing.T) {
	var withEmpty ModelPolicy
	if err := json.Unmarshal([]byte(`{"allow":{"openai":[]}}`), &withEmpty); err != nil {
		t.Fatal(err)
	}
	if withEmpty.Allow["openai"] == nil {
		t.Error("explicit empty list decoded as nil")
	}

	var absent ModelPolicy
	if err := json.Unmarshal([]byte(`{"allow":{}}`), &absent); err != nil {
		t.Fatal(err)
	}
	if list, ok := absent.Allow["openai"]; ok || list != nil {
		t.Error("absent provider should have no entry")
	}
}

func TestBudgetOverrideAbsentFields(t *testing.T) {
	var o BudgetOverride
	if err := json.Unmarshal([]byte(`{"daily_tokens":100}`), &o); err != nil {
		t.Fatal(err)
	}
	if o.DailyTokens == nil || *o.DailyTokens != 100 {
		t.Errorf("DailyTokens = %v", o.DailyTokens)
	}
	if o.Unit != nil || o.DailyUSD != nil || o.Thresholds != nil || o.Reset != nil {
		t.Error("unset override fields must stay nil")
	}
}
