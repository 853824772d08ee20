package policy

import (
	"testing"

	"github.com/ppiankov/intentgov/internal/model"
)

func FuzzLoadConstitution(f *testing.F) {
	f.Add([]byte(DefaultConstitutionYAML()))
	f.Add([]byte("- match: {action: refund}\n  effect: allow\n"))
	f.Add([]byte{})
	f.Add([]byte(`{{{not yaml at all`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Must not panic; a successful load must never default to allow.
		rules, err := Load(data, "fuzz")
		if err != nil {
			return
		}
		v := Evaluate(model.ToolCallRequest{Action: "zz_unmatched_tool_zz"}, rules)
		if v.Effect == model.Allow && v.Rule == "" {
			t.Fatal("unmatched call allowed without a rule")
		}
	})
}

func BenchmarkEvaluateRulesTraversal(b *testing.B) {
	rules, err := Load([]byte(DefaultConstitutionYAML()), "bench")
	if err != nil {
		b.Fatal(err)
	}
	engine := NewEngine(rules, map[string]any{"customer_tier": "standard", "customer_tenure_days": 10})
	req := model.ToolCallRequest{
		Action: "send_email",
		Args:   model.Args{{Name: "to", Value: "a@acme.com"}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Evaluate(req)
	}
}
