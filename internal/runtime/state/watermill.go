package state

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/signalflow/internal/runtime/name"
)

// ToWatermill flattens the compacted state into message headers, formatting
// values with fmt.Sprint.
func ToWatermill(s State) message.Metadata {
	compact := s.Compact()
	md := make(message.Metadata, compact.Len())
	for _, slot := range compact.slots {
		md[slot.Name.Path()] = fmt.Sprint(slot.Value)
	}
	return md
}

// FromWatermill turns headers into string slots. Keys that are not valid
// names are skipped.
func FromWatermill(md message.Metadata) State {
	var s State
	for k, v := range md {
		n, err := name.Parse(k)
		if err != nil {
			continue
		}
		s = s.With(n, v)
	}
	return s
}
