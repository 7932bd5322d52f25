package hardware

// FallbackModel is used whenever the host cannot be inspected.
const FallbackModel = "tiny"

// Recommend maps host specs to a model name. With a GPU the decision is
// driven by VRAM; otherwise by the RAM currently available, compared
// before rounding.
func Recommend(specs Specs) string {
	if specs.HasGPU() {
		switch {
		case specs.VRAMGB >= 8:
			return "large"
		case specs.VRAMGB >= 6:
			return "medium"
		case specs.VRAMGB >= 4:
			return "small"
		default:
			return "base"
		}
	}

	if float64(specs.RAMAvailableBytes)/bytesPerGB >= 8 {
		return "small"
	}
	return "base"
}
