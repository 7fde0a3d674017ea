package bridge

import (
	"fmt"
	"strings"
)

// InputOrder is the channel placement of the network's image input.
type InputOrder int

const (
	// OrderAuto detects the order from the declared input shape.
	OrderAuto InputOrder = iota
	// OrderNHWC is channels-last: (1, height, width, 3).
	OrderNHWC
	// OrderNCHW is channels-first: (1, 3, height, width).
	OrderNCHW
)

// Channels is the number of color channels fed to the network.
const Channels = 3

// ParseInputOrder parses "auto", "nhwc" or "nchw".
func ParseInputOrder(s string) (InputOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return OrderAuto, nil
	case "nhwc":
		return OrderNHWC, nil
	case "nchw":
		return OrderNCHW, nil
	default:
		return OrderAuto, fmt.Errorf("bridge: unknown input order %q", s)
	}
}

func (o InputOrder) String() string {
	switch o {
	case OrderAuto:
		return "auto"
	case OrderNHWC:
		return "nhwc"
	case OrderNCHW:
		return "nchw"
	default:
		return fmt.Sprintf("InputOrder(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o InputOrder) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *InputOrder) UnmarshalText(text []byte) error {
	v, err := ParseInputOrder(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// DetectInputOrder picks the channel order from a rank-4 input shape.
// A channel dimension of 3 in slot 1 means NCHW, in slot 3 means NHWC.
func DetectInputOrder(inputShape []int64) (InputOrder, error) {
	if len(inputShape) != 4 {
		return OrderAuto, fmt.Errorf("bridge: input shape %v is not rank 4", inputShape)
	}
	switch {
	case inputShape[1] == Channels && inputShape[3] != Channels:
		return OrderNCHW, nil
	case inputShape[3] == Channels:
		return OrderNHWC, nil
	default:
		return OrderAuto, fmt.Errorf("bridge: input shape %v has no %d-channel dimension", inputShape, Channels)
	}
}

// InputSize returns the declared width and height of a rank-4 input shape
// in the given order. Unknown dimensions are returned as -1.
func InputSize(inputShape []int64, order InputOrder) (width, height int, err error) {
	if len(inputShape) != 4 {
		return 0, 0, fmt.Errorf("bridge: input shape %v is not rank 4", inputShape)
	}
	switch order {
	case OrderNHWC:
		return int(inputShape[2]), int(inputShape[1]), nil
	case OrderNCHW:
		return int(inputShape[3]), int(inputShape[2]), nil
	default:
		return 0, 0, fmt.Errorf("bridge: input order %s is not resolved", order)
	}
}
