package models

import "testing"

func TestResolve_ColonVariant(t *testing.T) {
	r := Resolve("gemini-3.0-pro:high", "")
	if r.CanonicalID != "gemini-3.0-pro" || r.Variant != "high" {
		t.Errorf("got %+v", r)
	}
	if r.ModelUID != "gemini-3-pro-high" || r.EnumValue != 0 {
		t.Errorf("routing: %+v", r)
	}
}

func TestResolve_SuffixVariant(t *testing.T) {
	r := Resolve("gemini-3-0-pro-high", "")
	want := Resolve("gemini-3.0-pro:high", "")
	if r != want {
		t.Errorf("suffix form %+v != colon form %+v", r, want)
	}
}

func TestResolve_StringUIDRouting(t *testing.T) {
	r := Resolve("claude-4.6-opus:thinking", "")
	if r.ModelUID != "claude-opus-4-6-thinking" {
		t.Errorf("model_uid = %q", r.ModelUID)
	}
	if r.EnumValue != 0 {
		t.Errorf("string-UID models must have enum 0, got %d", r.EnumValue)
	}
}

func TestResolve_DefaultFallback(t *testing.T) {
	r := Resolve("unknown-model", "")
	if r.CanonicalID != "claude-3.5-sonnet" || r.EnumValue != 166 {
		t.Errorf("got %+v", r)
	}
	if r.ModelUID != "" {
		t.Errorf("enum-based models must have empty model_uid, got %q", r.ModelUID)
	}
}

func TestResolve_OverrideBeatsInline(t *testing.T) {
	r := Resolve("gemini-3.0-pro:high", "low")
	if r.Variant != "low" {
		t.Errorf("override should win, got variant %q", r.Variant)
	}
}

func TestResolve_DefaultVariant(t *testing.T) {
	r := Resolve("claude-4.6-opus", "")
	if r.Variant != "medium" || r.ModelUID != "claude-opus-4-6" {
		t.Errorf("got %+v", r)
	}
}

func TestResolve_UnknownVariantFallsBackToDefault(t *testing.T) {
	r := Resolve("gemini-3.0-pro:turbo", "")
	if r.Variant != "medium" {
		t.Errorf("unknown variant should use default, got %q", r.Variant)
	}
}

func TestResolve_EnumVariant(t *testing.T) {
	r := Resolve("claude-3.7-sonnet:thinking", "")
	if r.EnumValue != 251 || r.ModelUID != "" {
		t.Errorf("got %+v", r)
	}
}

func TestResolve_Alias(t *testing.T) {
	r := Resolve("claude-sonnet-4-5", "")
	if r.CanonicalID != "claude-4.5-sonnet" {
		t.Errorf("got %+v", r)
	}
}

func TestResolve_LegacyFlatMap(t *testing.T) {
	r := Resolve("gpt-4o", "")
	if r.EnumValue != 164 || r.ModelUID != "" {
		t.Errorf("got %+v", r)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	inputs := []string{"gemini-3.0-pro:high", "claude-4.6-opus:thinking", "claude-3.7-sonnet:thinking", "gpt-5.2:xhigh"}
	for _, in := range inputs {
		first := Resolve(in, "")
		again := Resolve(first.CanonicalID+":"+first.Variant, "")
		if first != again {
			t.Errorf("%s: %+v re-resolved to %+v", in, first, again)
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		if Resolve("gemini-3-0-pro-xhigh", "") != Resolve("gemini-3-0-pro-xhigh", "") {
			t.Fatal("resolution must be deterministic")
		}
	}
}

func TestResolve_RoutingModesExclusive(t *testing.T) {
	for _, in := range []string{"claude-3.5-sonnet", "claude-4.6-opus:high", "gpt-4o", "unknown", "claude-3.7-sonnet"} {
		r := Resolve(in, "")
		uid := r.ModelUID != ""
		enum := r.EnumValue != 0
		if uid == enum {
			t.Errorf("%s: exactly one routing mode must be active, got %+v", in, r)
		}
	}
}

func TestProtoModelName(t *testing.T) {
	if got := ProtoModelName(Resolve("claude-3.5-sonnet", "")); got != "MODEL_CLAUDE_3_5_SONNET_20241022" {
		t.Errorf("enum rendering: %q", got)
	}
	if got := ProtoModelName(Resolve("claude-4.6-opus:thinking", "")); got != "claude-opus-4-6-thinking" {
		t.Errorf("uid rendering: %q", got)
	}
}

func TestList_SortedWithVariants(t *testing.T) {
	infos := List()
	if len(infos) == 0 {
		t.Fatal("catalog is empty")
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].ID >= infos[i].ID {
			t.Errorf("list not sorted at %d: %s >= %s", i, infos[i-1].ID, infos[i].ID)
		}
	}
	for _, info := range infos {
		if info.ID == "claude-4.6-opus" && len(info.Variants) != 6 {
			t.Errorf("claude-4.6-opus variants = %v", info.Variants)
		}
	}
}
