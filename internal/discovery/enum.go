package discovery

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EnumEntry is one value of the vendor's Model enum as declared in the
// extension bundle.
type EnumEntry struct {
	No   int
	Name string
}

var enumTypeStart = regexp.MustCompile(`setEnumType\([^,]*,\s*"exa\.codeium_common_pb\.Model"\s*,\s*\[`)

// enumIgnore filters enum values that are not chat models: telemetry,
// embeddings, tab/autocomplete, previews, BYOK and private/experimental
// entries. Matched case-insensitively as substrings of the enum symbol.
var enumIgnore = []string{
	"telemetry",
	"embed",
	"tab_",
	"autocomplete",
	"preview",
	"byok",
	"private",
	"experimental",
	"unspecified",
}

// ExtractModelEnum returns the chat-model entries of the Model enum, sorted
// by value. Used by the doctor command to keep the registry current; the
// serving path never calls it.
func ExtractModelEnum(src string) []EnumEntry {
	loc := enumTypeStart.FindStringIndex(src)
	if loc == nil {
		return nil
	}
	block, ok := bracketSpan(src, loc[1]-1)
	if !ok {
		return nil
	}

	var out []EnumEntry
	for _, m := range fieldPair.FindAllStringSubmatch(block, -1) {
		no, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if ignoredEnumName(m[2]) {
			continue
		}
		out = append(out, EnumEntry{No: no, Name: m[2]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].No < out[j].No })
	return out
}

func ignoredEnumName(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range enumIgnore {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
