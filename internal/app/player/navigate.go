package player

// Navigation resolves "which index plays next" from (length, current, mode).
// These are pure functions; the store owns the random source for shuffle.

// NextIndex computes the index that follows current under the given mode.
// intn must return a uniform value in [0, n). An empty playlist and a
// sequential end-of-list both leave the index unchanged.
func NextIndex(length, current int, mode PlayMode, intn func(int) int) int {
	if length == 0 {
		return current
	}
	switch mode {
	case ModeSequential:
		if current < length-1 {
			return current + 1
		}
		return current
	case ModeShuffle:
		return shuffleIndex(length, current, intn)
	case ModeRepeatOne:
		return current
	case ModeRepeatAll:
		return (current + 1) % length
	}
	return current
}

// PreviousIndex computes the index that precedes current under the given mode.
func PreviousIndex(length, current int, mode PlayMode, intn func(int) int) int {
	if length == 0 {
		return current
	}
	switch mode {
	case ModeSequential:
		if current > 0 {
			return current - 1
		}
		return current
	case ModeShuffle:
		return shuffleIndex(length, current, intn)
	case ModeRepeatOne:
		return current
	case ModeRepeatAll:
		if current <= 0 {
			return length - 1
		}
		return current - 1
	}
	return current
}

// shuffleIndex draws a random index distinct from current when length > 1.
// A single-entry playlist stays on its only index.
func shuffleIndex(length, current int, intn func(int) int) int {
	if length <= 1 {
		return current
	}
	next := current
	for next == current {
		next = intn(length)
	}
	return next
}

// shouldRestart reports whether a navigation result warrants (re)starting
// playback: a changed index always does, an unchanged one only in repeat-one.
func shouldRestart(next, current int, mode PlayMode) bool {
	return next != current || mode == ModeRepeatOne
}
