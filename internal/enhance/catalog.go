package enhance

// Provider labels used by the catalog and registry.
const (
	ProviderOpenAI    = "openai"
	ProviderReplicate = "replicate"
	ProviderRunware   = "runware"
)

// ToolSpec describes one enhancement tool: which provider backs it and the
// instruction passed along with the image.
type ToolSpec struct {
	ID       string
	Provider string
	Prompt   string
}

// Catalog is the static tool table. Adding a tool means adding a row here and
// nothing else: dispatch, validation and metrics all key off this map.
var Catalog = map[string]ToolSpec{
	"sky-replacement": {
		ID:       "sky-replacement",
		Provider: ProviderReplicate,
		Prompt:   "Replace the sky with a clear blue sky with soft natural clouds. Keep the building and landscape unchanged.",
	},
	"virtual-staging": {
		ID:       "virtual-staging",
		Provider: ProviderOpenAI,
		Prompt:   "Furnish this empty room with tasteful modern staging furniture appropriate to the room type.",
	},
	"twilight": {
		ID:       "twilight",
		Provider: ProviderReplicate,
		Prompt:   "Convert this exterior photo to a warm dusk twilight scene with interior lights glowing.",
	},
	"hdr": {
		ID:       "hdr",
		Provider: ProviderRunware,
		Prompt:   "Balance exposure and recover highlight and shadow detail for a natural HDR look.",
	},
	"declutter": {
		ID:       "declutter",
		Provider: ProviderOpenAI,
		Prompt:   "Remove clutter and personal items from the room while preserving the architecture and fixed furniture.",
	},
	"lawn-repair": {
		ID:       "lawn-repair",
		Provider: ProviderRunware,
		Prompt:   "Repair patchy or brown grass so the lawn appears healthy, green and evenly mown.",
	},
}

// IsKnownTool reports whether id is a catalog entry.
func IsKnownTool(id string) bool {
	_, ok := Catalog[id]
	return ok
}

// ToolIDs returns the catalog keys, for validation error messages.
func ToolIDs() []string {
	ids := make([]string, 0, len(Catalog))
	for id := range Catalog {
		ids = append(ids, id)
	}
	return ids
}
