package audio

// DrainPending discards every value currently buffered in ch without
// blocking and returns how many were dropped. Values sent concurrently may
// survive the call.
func DrainPending[T any](ch <-chan T) int {
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}
