package mmio

// Bus grants ordered 32-bit access to a fixed-offset register block.
// Each read and write is individually atomic; callers own all
// sequencing beyond that.
type Bus interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}
