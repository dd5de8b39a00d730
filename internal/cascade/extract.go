package cascade

import "github.com/nextlevelbuilder/windlink/internal/wire"

// Trajectory step layout: each response frame is a
// GetCascadeTrajectoryStepsResponse with repeated field 1 = step; inside a
// step, field 20 is the planner_response sub-message carrying field 1 =
// response and field 8 = modified_response.
const (
	stepField            = 1
	plannerResponseField = 20
	responseField        = 1
	modifiedField        = 8
)

// ExtractResponse walks every frame and step in body and returns the last
// non-empty assistant text. Within a step, modified_response overrides
// response when both are present. Empty means the cascade has produced no
// text yet.
func ExtractResponse(body []byte) string {
	var last string
	for _, frame := range wire.Unframe(body) {
		for _, step := range wire.Messages(wire.Fields(frame), stepField) {
			for _, pr := range wire.Messages(wire.Fields(step), plannerResponseField) {
				fields := wire.Fields(pr)
				text := wire.String(fields, responseField)
				if modified := wire.String(fields, modifiedField); modified != "" {
					text = modified
				}
				if text != "" {
					last = text
				}
			}
		}
	}
	return last
}
