package tcpslot

// Callbacks is the only interface the TCP engine exposes upward
// (spec.md §6 "Application callback surface"). All three methods are
// invoked synchronously from within the main loop; none may block.
type Callbacks interface {
	// OnData is invoked in ESTABLISHED for each accepted in-order
	// payload segment. data is valid only for the duration of the call.
	OnData(data []byte)

	// OnStateChange is invoked on each TCP state transition that
	// crosses a notification boundary: reaching SYN_RECEIVED,
	// ESTABLISHED, or LISTEN after a close or reset.
	OnStateChange(old, new State, remoteAddr [4]byte, remotePort uint16)

	// OnAccept is consulted to admit a SYN. Returning false drops it.
	OnAccept(remoteAddr [4]byte, remotePort uint16) bool
}
