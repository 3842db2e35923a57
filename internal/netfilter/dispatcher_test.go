package netfilter

import (
	"strconv"
	"testing"
)

func TestBuildDispatchRulesStatisticProgression(t *testing.T) {
	rules := buildDispatchRules("203.0.113.10", 1080, []int{32482, 32483, 32484})
	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}

	contains := func(rule []string, tok string) bool {
		for _, f := range rule {
			if f == tok {
				return true
			}
		}
		return false
	}

	// First two rules carry a decreasing `--every` statistic; the last is
	// unconditional (no -m statistic at all).
	wantEvery := []string{"3", "2"}
	for i := 0; i < 2; i++ {
		if !contains(rules[i], "statistic") {
			t.Errorf("rule %d: expected statistic match, got %v", i, rules[i])
		}
		found := false
		for j, f := range rules[i] {
			if f == "--every" && j+1 < len(rules[i]) && rules[i][j+1] == wantEvery[i] {
				found = true
			}
		}
		if !found {
			t.Errorf("rule %d: expected --every %s, got %v", i, wantEvery[i], rules[i])
		}
	}
	if contains(rules[2], "statistic") {
		t.Errorf("last rule should be unconditional, got %v", rules[2])
	}

	for i, tport := range []int{32482, 32483, 32484} {
		want := "127.0.0.1:" + strconv.Itoa(tport)
		if !contains(rules[i], want) {
			t.Errorf("rule %d: expected DNAT target %s, got %v", i, want, rules[i])
		}
	}
}
