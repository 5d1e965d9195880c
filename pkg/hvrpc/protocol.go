package hvrpc

// Program and protocol version identify the RPC service this package
// speaks to, carried in every frame's header.
const (
	ProgramRemote   uint32 = 0x20008086
	ProtocolVersion uint32 = 1
)

// Authentication procedure numbers, used only during Open before the
// caller's first RPC.
const (
	ProcAuthList   uint32 = 66
	ProcAuthInit   uint32 = 67
	ProcAuthStep   uint32 = 68
	ProcAuthPolkit uint32 = 69
)
