package enums

type MediaKind string

const (
	MediaKindPhoto     MediaKind = "photo"
	MediaKindVideo     MediaKind = "video"
	MediaKindAnimation MediaKind = "animation"
)

// Groupable reports whether the kind may be sent inside a telegram media group.
func (k MediaKind) Groupable() bool {
	return k == MediaKindPhoto || k == MediaKindVideo
}
