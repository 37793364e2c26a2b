package value

// CompressedPointer is a 32-bit offset into a single aligned heap region.
// Offset 0 is reserved as NULL and is never handed out by the arena
// allocator (internal/jcontext).
type CompressedPointer uint32

const NullPointer CompressedPointer = 0

func (cp CompressedPointer) IsNull() bool { return cp == NullPointer }

// Alignment is the granularity compressed pointers are expressed in. The
// arena only ever returns offsets that are multiples of Alignment, so a
// 32-bit CompressedPointer can address Alignment*2^32 bytes of heap.
const Alignment = 8
