package draft

import (
	"fmt"
	"strings"
)

// Block is one merged unit handed to the writer: either a researched
// section's material or an explicit gap marker for a failed one.
type Block struct {
	Index   int
	Title   string
	Content string
	Gap     bool
}

// GapMarker is the placeholder emitted for a failed section so the
// aggregate document acknowledges the hole instead of silently
// omitting it.
func GapMarker(title string) string {
	return fmt.Sprintf("[section unavailable: %s]", title)
}

// Merge assembles the writer's input strictly in plan index order.
// Completion order plays no part: a section that finished last still
// lands at its planned position.
func Merge(d *Draft) []Block {
	sections := d.OrderedSections()
	blocks := make([]Block, 0, len(sections))
	for _, s := range sections {
		switch s.Status {
		case StatusDone:
			blocks = append(blocks, Block{Index: s.Index, Title: s.Title, Content: s.Content})
		default:
			blocks = append(blocks, Block{Index: s.Index, Title: s.Title, Content: GapMarker(s.Title), Gap: true})
		}
	}
	return blocks
}

// RenderBlocks flattens merged blocks into the prompt material for the
// writer's single aggregate generation call.
func RenderBlocks(blocks []Block) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", blk.Title, blk.Content)
	}
	return b.String()
}
