package h5

// bleEventSentinel is the LE meta event code. Seeing it where no frame is
// expected is taken as a sign the stream lost sync during a busy scan.
const bleEventSentinel = 0x3E

// streamCorruptedDuringLEScan reports whether c was consumed by the resync
// heuristic. After a sentinel the next byte is read as a length and that
// many bytes are skipped, or fewer when a frame opens first. A genuine 0x3E
// arriving between frames also trips it; the heuristic is kept as is.
func (t *Transport) streamCorruptedDuringLEScan(c byte) bool {
	if !t.corruptionDetected && c == bleEventSentinel {
		t.log.Error("HCI stream corrupted (message type 0x3E)!")
		t.corruptionDetected = true
		return true
	}

	if t.corruptionDetected {
		if t.corruptionBytesToIgnore == 0 {
			t.corruptionBytesToIgnore = c
			t.log.Errorf("about to skip %d bytes...", t.corruptionBytesToIgnore)
		} else {
			t.corruptionBytesToIgnore--
		}

		if t.corruptionBytesToIgnore == 0 {
			t.log.Error("back to regular parsing")
			t.corruptionDetected = false
		}
		return true
	}

	return false
}

// resetCorruption ends a skip in progress. A frame delimiter means the
// stream is back in sync.
func (t *Transport) resetCorruption() {
	if t.corruptionDetected {
		t.log.Error("frame start, back to regular parsing")
	}
	t.corruptionDetected = false
	t.corruptionBytesToIgnore = 0
}
