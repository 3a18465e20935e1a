package store

import "github.com/wuji-robotics/handdrv/pkg/wire"

// HandleSDOFrame parses and routes every SDO response record in an
// incoming frame's payload (the bytes following the framing header).
// Parsing stops at the first padding byte or malformed record, per
// spec.md §4.3's "Padding (stop parsing)" control byte.
func (s *Store) HandleSDOFrame(payload []byte) {
	for len(payload) > 0 {
		resp, consumed, ok := wire.ParseSDOResponse(payload)
		if !ok {
			return
		}
		s.routeResponse(resp)
		payload = payload[consumed:]
	}
}

func (s *Store) routeResponse(resp wire.SDOResponse) {
	if c, ok := s.index[key(resp.Index, resp.SubIndex)]; ok {
		s.routeToCell(c, resp)
		return
	}
	if s.routeToRawSlot(resp) {
		return
	}
	s.log.Warnf("sdo: response for unknown object %#04x:%d discarded", resp.Index, resp.SubIndex)
}

func (s *Store) routeToCell(c *Cell, resp wire.SDOResponse) {
	if resp.IsError() {
		s.log.Errorf("sdo: object %#04x:%d reported error code %#08x", resp.Index, resp.SubIndex, resp.ErrCode)
		return
	}
	if !resp.IsReadSuccess() {
		return
	}
	_, state := c.loadOp()
	switch state {
	case StateReading:
		c.setHostValue(decodeWire(c.Policy, c.Size, resp.Value))
		c.bumpVersion()
		c.storeOp(ModeRead, StateSuccess)
	case StateWritingConfirming:
		expected := encodeWire(c.Policy, c.Size, c.hostValue())
		if resp.Value == expected {
			c.storeOp(ModeWrite, StateSuccess)
		} else {
			c.storeOp(ModeWrite, StateWriting)
		}
	default:
		// Stray or duplicate reply for a cell no longer expecting one;
		// harmless, ignore it.
	}
}

// routeToRawSlot offers an unmatched response to the raw SDO slot pool,
// per §4.4: "Responses that don't match any tracked cell are also
// offered to raw SDO slots for matching."
func (s *Store) routeToRawSlot(resp wire.SDOResponse) bool {
	for i := range s.raw {
		slot := &s.raw[i]
		slot.mu.Lock()
		if !slot.inUse || slot.index != resp.Index || slot.subIndex != resp.SubIndex {
			slot.mu.Unlock()
			continue
		}
		switch slot.state {
		case RawReading:
			if resp.IsError() {
				slot.state = RawFailed
			} else if resp.IsReadSuccess() {
				buf := make([]byte, resp.Size)
				for b := 0; b < resp.Size; b++ {
					buf[b] = byte(resp.Value >> (8 * b))
				}
				slot.readResult = buf
				slot.state = RawSuccess
			}
			slot.cond.Broadcast()
			slot.mu.Unlock()
			return true
		case RawWriting:
			if resp.IsWriteSuccess() {
				slot.state = RawSuccess
			} else if resp.IsError() {
				slot.state = RawFailed
			}
			slot.cond.Broadcast()
			slot.mu.Unlock()
			return true
		default:
			slot.mu.Unlock()
			continue
		}
	}
	return false
}
