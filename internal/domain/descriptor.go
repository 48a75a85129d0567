package domain

// ImageDescriptor is the analyzer's summary of one source image. It is
// produced outside this service and treated as immutable input.
type ImageDescriptor struct {
	Path     string   `json:"path"`
	Hash     string   `json:"hash"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Palette  []string `json:"palette,omitempty"`
	Subjects []string `json:"subjects"`
	Style    []string `json:"style,omitempty"`
	Lighting string   `json:"lighting,omitempty"`
}

// TagSource names the descriptor field a derived tag was drawn from.
type TagSource string

const (
	TagSourceSubject     TagSource = "subject"
	TagSourceStyle       TagSource = "style"
	TagSourceLighting    TagSource = "lighting"
	TagSourcePalette     TagSource = "palette"
	TagSourceCamera      TagSource = "camera"
	TagSourceComposition TagSource = "composition"
)

// Tag records one derived prompt term together with its provenance, so a
// composed prompt can be traced back to the descriptor it came from.
type Tag struct {
	Value      string    `json:"value"`
	Source     TagSource `json:"source"`
	Descriptor string    `json:"descriptor"`
}
