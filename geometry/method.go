package geometry

import (
	"fmt"

	"github.com/notargets/FVKernel/utils"
)

// Method selects the discretization scheme
type Method uint8

const (
	Box       Method = iota // Vertex centered control volumes
	CCTpfa                  // Cell centered, two-point flux approximation
	CCMpfa                  // Cell centered, multi-point flux approximation
	Staggered               // Face staggered grids
)

func (m Method) String() string {
	switch m {
	case Box:
		return "box"
	case CCTpfa:
		return "cctpfa"
	case CCMpfa:
		return "ccmpfa"
	case Staggered:
		return "staggered"
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// IsCellCentered is true for the schemes with one dof per element
func (m Method) IsCellCentered() bool {
	return m == CCTpfa || m == CCMpfa
}

// ParseMethod maps a configuration name to a method
func ParseMethod(name string) (Method, error) {
	for _, m := range []Method{Box, CCTpfa, CCMpfa, Staggered} {
		if m.String() == name {
			return m, nil
		}
	}
	return Box, fmt.Errorf("%w: discretization method %q", utils.ErrUnsupported, name)
}
