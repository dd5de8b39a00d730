// Package models maps user-supplied model strings onto the identifiers the
// Cascade backend understands. A model routes either by numeric enum value
// (legacy) or by string model UID (newer models without stable enum values);
// exactly one of the two is active for any resolved request.
package models

import (
	"sort"
	"strings"
)

// VariantSpec describes one tier of a model. ModelUID takes precedence over
// EnumValue when both are set.
type VariantSpec struct {
	EnumValue   uint32
	ModelUID    string
	Description string
}

// Descriptor is one canonical model in the catalog.
type Descriptor struct {
	CanonicalID    string
	EnumValue      uint32
	DefaultVariant string
	Variants       map[string]VariantSpec
}

// Resolved is the routing decision for one request. EnumValue == 0 with a
// non-empty ModelUID means string-UID routing; a non-zero EnumValue with an
// empty ModelUID means enum routing.
type Resolved struct {
	CanonicalID string
	Variant     string
	EnumValue   uint32
	ModelUID    string
}

// knownVariants are the tier names the resolver recognizes, both after a
// colon and as a dash suffix. Longest first so suffix detection is
// deterministic ("-xhigh" must win over "-high").
var knownVariants = []string{
	"thinking",
	"minimal",
	"medium",
	"xhigh",
	"high",
	"fast",
	"slow",
	"low",
	"1m",
}

var catalog = map[string]*Descriptor{
	"claude-3.5-sonnet": {
		CanonicalID: "claude-3.5-sonnet",
		EnumValue:   166,
	},
	"claude-3.7-sonnet": {
		CanonicalID:    "claude-3.7-sonnet",
		DefaultVariant: "medium",
		Variants: map[string]VariantSpec{
			"medium":   {EnumValue: 250, Description: "standard reasoning"},
			"thinking": {EnumValue: 251, Description: "extended thinking"},
		},
	},
	"claude-4.5-sonnet": {
		CanonicalID:    "claude-4.5-sonnet",
		DefaultVariant: "medium",
		Variants: map[string]VariantSpec{
			"medium":   {ModelUID: "claude-sonnet-4-5", Description: "standard reasoning"},
			"thinking": {ModelUID: "claude-sonnet-4-5-thinking", Description: "extended thinking"},
			"1m":       {ModelUID: "claude-sonnet-4-5-1m", Description: "1M token context"},
		},
	},
	"claude-4.6-opus": {
		CanonicalID:    "claude-4.6-opus",
		DefaultVariant: "medium",
		Variants: map[string]VariantSpec{
			"low":      {ModelUID: "claude-opus-4-6-low", Description: "low reasoning effort"},
			"medium":   {ModelUID: "claude-opus-4-6", Description: "standard reasoning"},
			"high":     {ModelUID: "claude-opus-4-6-high", Description: "high reasoning effort"},
			"xhigh":    {ModelUID: "claude-opus-4-6-xhigh", Description: "maximum reasoning effort"},
			"thinking": {ModelUID: "claude-opus-4-6-thinking", Description: "extended thinking"},
			"fast":     {ModelUID: "claude-opus-4-6-fast", Description: "fast serving tier"},
		},
	},
	"gemini-3.0-pro": {
		CanonicalID:    "gemini-3.0-pro",
		DefaultVariant: "medium",
		Variants: map[string]VariantSpec{
			"low":    {ModelUID: "gemini-3-pro-low", Description: "low reasoning effort"},
			"medium": {ModelUID: "gemini-3-pro-medium", Description: "standard reasoning"},
			"high":   {ModelUID: "gemini-3-pro-high", Description: "high reasoning effort"},
		},
	},
	"gpt-5.2": {
		CanonicalID:    "gpt-5.2",
		DefaultVariant: "medium",
		Variants: map[string]VariantSpec{
			"minimal": {ModelUID: "gpt-5-2-minimal", Description: "minimal reasoning"},
			"low":     {ModelUID: "gpt-5-2-low", Description: "low reasoning effort"},
			"medium":  {ModelUID: "gpt-5-2", Description: "standard reasoning"},
			"high":    {ModelUID: "gpt-5-2-high", Description: "high reasoning effort"},
			"xhigh":   {ModelUID: "gpt-5-2-xhigh", Description: "maximum reasoning effort"},
		},
	},
}

var aliasToCanonical = map[string]string{
	"claude-3-5-sonnet":          "claude-3.5-sonnet",
	"claude-3.5-sonnet-20241022": "claude-3.5-sonnet",
	"claude-3-7-sonnet":          "claude-3.7-sonnet",
	"claude-sonnet-4.5":          "claude-4.5-sonnet",
	"claude-4-5-sonnet":          "claude-4.5-sonnet",
	"claude-sonnet-4-5":          "claude-4.5-sonnet",
	"claude-opus-4.6":            "claude-4.6-opus",
	"claude-4-6-opus":            "claude-4.6-opus",
	"claude-opus-4-6":            "claude-4.6-opus",
	"gemini-3-0-pro":             "gemini-3.0-pro",
	"gemini-3-pro":               "gemini-3.0-pro",
	"gpt-5-2":                    "gpt-5.2",
}

// nameToEnum is the legacy flat map, consulted when no catalog entry exists.
var nameToEnum = map[string]uint32{
	"claude-3.5-sonnet": 166,
	"gpt-4o":            164,
	"o3-mini":           254,
	"deepseek-v3":       261,
}

// enumSymbol renders enum values as their vendor proto symbols, minus the
// MODEL_ prefix.
var enumSymbol = map[uint32]string{
	164: "GPT_4O",
	166: "CLAUDE_3_5_SONNET_20241022",
	250: "CLAUDE_3_7_SONNET",
	251: "CLAUDE_3_7_SONNET_THINKING",
	254: "O3_MINI",
	261: "DEEPSEEK_V3",
}

const (
	defaultCanonical = "claude-3.5-sonnet"
	defaultEnum      = 166
)

// Resolve maps input (and an optional variant override, which always wins
// over anything parsed from input) to a routing decision. Resolution is
// pure: the same arguments always produce the same Resolved.
func Resolve(input, overrideVariant string) Resolved {
	idPart, variantPart := splitVariant(input)
	if overrideVariant != "" {
		variantPart = overrideVariant
	}

	canonical := idPart
	if c, ok := aliasToCanonical[idPart]; ok {
		canonical = c
	}

	if d, ok := catalog[canonical]; ok {
		if len(d.Variants) == 0 {
			return Resolved{CanonicalID: d.CanonicalID, EnumValue: d.EnumValue}
		}
		variant := variantPart
		if _, ok := d.Variants[variant]; !ok {
			variant = d.DefaultVariant
		}
		spec := d.Variants[variant]
		if spec.ModelUID != "" {
			return Resolved{CanonicalID: d.CanonicalID, Variant: variant, ModelUID: spec.ModelUID}
		}
		return Resolved{CanonicalID: d.CanonicalID, Variant: variant, EnumValue: spec.EnumValue}
	}

	if e, ok := nameToEnum[input]; ok {
		return Resolved{CanonicalID: input, EnumValue: e}
	}
	return Resolved{CanonicalID: defaultCanonical, EnumValue: defaultEnum}
}

// splitVariant separates a variant tier from the model id. A colon is
// authoritative ("gemini-3.0-pro:high"); without one, a trailing
// "-<known variant>" counts only when the stripped prefix is itself a
// catalog id or alias ("gemini-3-0-pro-high").
func splitVariant(input string) (id, variant string) {
	if i := strings.Index(input, ":"); i >= 0 {
		return input[:i], input[i+1:]
	}
	for _, v := range knownVariants {
		prefix, ok := strings.CutSuffix(input, "-"+v)
		if !ok {
			continue
		}
		if _, isAlias := aliasToCanonical[prefix]; isAlias {
			return prefix, v
		}
		if _, isCanonical := catalog[prefix]; isCanonical {
			return prefix, v
		}
	}
	return input, ""
}

// ProtoModelName renders the identifier sent in PlannerConfig field 35: the
// model UID when present, else the enum's vendor proto name.
func ProtoModelName(r Resolved) string {
	if r.ModelUID != "" {
		return r.ModelUID
	}
	if sym, ok := enumSymbol[r.EnumValue]; ok {
		return "MODEL_" + sym
	}
	return "MODEL_" + enumSymbol[defaultEnum]
}

// Info is a catalog entry in listing form, served by /v1/models and the
// models command.
type Info struct {
	ID       string
	Variants []string
}

// List returns the catalog sorted by canonical id, variants sorted by name.
func List() []Info {
	out := make([]Info, 0, len(catalog))
	for id, d := range catalog {
		info := Info{ID: id}
		for v := range d.Variants {
			info.Variants = append(info.Variants, v)
		}
		sort.Strings(info.Variants)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
