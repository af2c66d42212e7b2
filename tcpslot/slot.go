package tcpslot

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/internal"
	"github.com/leocurrie/httpofo/metrics"
)

// initialSendSeq is the fixed initial sequence number this stack uses
// for both passive and active opens (spec.md §4.6: "initialize send
// sequence to 1000"). A fixed ISN is a deliberate simplification
// rather than RFC 793's clock-derived choice -- acceptable on a
// point-to-point link with a
// single peer and no shared listener history to collide with.
const initialSendSeq Seq = 1000

// window is the fixed advertised window (spec.md §4.6: "window = 2048").
const window uint16 = 2048

var errDestPortMismatch = errors.New("tcpslot: destination port mismatch")

// IPSender is the downward interface the slot uses to hand a finished
// TCP segment to the IPv4 output path. Implemented by the network
// context that owns the transmit scratch buffer.
type IPSender interface {
	SendTCP(remoteAddr [4]byte, segment []byte) error
}

// Slot is the single, process-wide TCP connection slot of spec.md §3.
// Exactly one exists for the life of the process.
type Slot struct {
	internal.Logger

	localAddr [4]byte
	localPort uint16

	state      State
	remoteAddr [4]byte
	remotePort uint16

	sndNxt  Seq // next sequence number we will send
	rcvNxt  Seq // next sequence number expected from peer
	lastAck Seq // last ack received from peer

	cell    retransmitCell
	backlog backlog

	validator httpofo.Validator

	scratch []byte
	sender  IPSender
	cb      Callbacks
}

// NewSlot constructs a Slot bound to localAddr. scratch must be at least
// HeaderSize+retransmitCellCapacity bytes; it is reused for every
// outbound segment this slot emits.
func NewSlot(localAddr [4]byte, scratch []byte, sender IPSender, cb Callbacks) *Slot {
	return &Slot{
		localAddr: localAddr,
		state:     StateClosed,
		scratch:   scratch,
		sender:    sender,
		cb:        cb,
	}
}

// State returns the slot's current state.
func (s *Slot) State() State { return s.state }

// CanSend reports whether the retransmit cell is free, i.e. a new
// application send would not clobber an unacknowledged one (spec.md §9's
// "best-effort one outstanding send" contract -- callers that want to
// honor it poll this before sending).
func (s *Slot) CanSend() bool { return s.cell.empty() }

// Listen moves a CLOSED slot to LISTEN (spec.md §6 downward surface).
func (s *Slot) Listen(port uint16) {
	s.localPort = port
	s.setState(StateListen)
}

// Connect moves a CLOSED or LISTEN slot to SYN_SENT, filling the remote
// endpoint and emitting a SYN (spec.md §4.6 "Active connect").
func (s *Slot) Connect(remoteAddr [4]byte, remotePort uint16) error {
	s.remoteAddr = remoteAddr
	s.remotePort = remotePort
	s.sndNxt = initialSendSeq
	s.setState(StateSynSent)
	return s.emit(FlagSYN, nil)
}

// Send emits PSH|ACK in ESTABLISHED; it is a no-op otherwise (spec.md
// §4.6 "Send"). payload longer than the retransmit cell's capacity is
// truncated; callers that need more must chunk their writes.
func (s *Slot) Send(now httpofo.Tick, payload []byte) error {
	if s.state != StateEstablished {
		return nil
	}
	if len(payload) > retransmitCellCapacity {
		payload = payload[:retransmitCellCapacity]
	}
	seq := s.sndNxt
	s.cell.fill(seq, now, payload)
	return s.emit(FlagPSH|FlagACK, s.cell.payload())
}

// Close performs an active close: if ESTABLISHED, emits FIN|ACK and
// moves to FIN_WAIT_1. The retransmit cell is always cleared (spec.md
// §4.6 "Active close").
func (s *Slot) Close() error {
	defer s.cell.clear()
	if s.state != StateEstablished {
		return nil
	}
	if err := s.emit(FlagFIN|FlagACK, nil); err != nil {
		return err
	}
	s.setState(StateFinWait1)
	return nil
}

// Tick runs the periodic retransmission check (spec.md §4.6
// "Retransmission"). It is a no-op outside ESTABLISHED or when the cell
// is empty or not yet due.
func (s *Slot) Tick(now httpofo.Tick) error {
	if s.state != StateEstablished || !s.cell.due(now) {
		return nil
	}
	s.cell.attempts++
	if s.cell.exhausted() {
		s.Warn("tcpslot: retransmit abandoned", slog.Int("attempts", s.cell.attempts))
		metrics.RetransmitAbandoned.Inc()
		s.cell.clear()
		return nil
	}
	metrics.RetransmitAttempts.Inc()
	payload := append([]byte(nil), s.cell.payload()...)
	s.sndNxt = s.cell.seq
	if err := s.emit(FlagPSH|FlagACK, payload); err != nil {
		return err
	}
	s.cell.sentAt = now
	return nil
}

// HandleSegment is the TCP engine's inbound dispatch (spec.md §4.6
// "Inbound dispatch" and "State transitions"). raw is the full TCP
// segment (header+payload); now is the current tick, used to stamp any
// backlog entry this segment creates.
func (s *Slot) HandleSegment(remoteAddr [4]byte, raw []byte, now httpofo.Tick) error {
	f, err := NewFrame(raw)
	if err != nil {
		return httpofo.ErrPacketDrop
	}
	metrics.SegmentsIn.With(prometheus.Labels{"state": s.state.String()}).Inc()
	s.validator.ResetErr()
	f.ValidateSize(&s.validator)
	if f.DestinationPort() != s.localPort {
		s.validator.GotErr(errDestPortMismatch)
	}
	if err := s.validator.Err(); err != nil {
		return httpofo.ErrPacketDrop
	}
	offset, _ := f.OffsetAndFlags()
	seg := f.Segment(len(raw) - int(offset)*4)
	payload := raw[int(offset)*4:]

	if seg.Flags.HasAll(FlagRST) && s.state != StateClosed && s.state != StateListen {
		s.resetToListen(now)
		return nil
	}
	if seg.Flags.HasAll(FlagSYN) && !seg.Flags.HasAll(FlagACK) && s.state != StateListen {
		if s.backlog.push(remoteAddr, seg.SrcPort, seg.SEQ, now) {
			s.Debug("tcpslot: backlog full, dropping SYN")
		}
		return nil
	}

	switch s.state {
	case StateListen:
		if seg.Flags.HasAll(FlagSYN) && !seg.Flags.HasAll(FlagACK) {
			return s.acceptSyn(remoteAddr, seg.SrcPort, seg.SEQ)
		}
	case StateSynSent:
		if seg.Flags.HasAll(FlagSYN | FlagACK) {
			s.rcvNxt = seg.SEQ.Add(1)
			s.lastAck = seg.ACK
			s.setState(StateEstablished)
			return s.emit(FlagACK, nil)
		}
	case StateSynReceived:
		if seg.Flags.HasAll(FlagACK) {
			s.lastAck = seg.ACK
			s.setState(StateEstablished)
		}
	case StateEstablished:
		return s.handleEstablished(seg, payload, now)
	case StateFinWait1:
		if seg.Flags.HasAll(FlagFIN) {
			return s.ackFinAndReturnToListen(seg, now)
		}
		if seg.Flags.HasAll(FlagACK) {
			s.lastAck = seg.ACK
			s.setState(StateFinWait2)
		}
	case StateFinWait2:
		if seg.Flags.HasAll(FlagFIN) {
			return s.ackFinAndReturnToListen(seg, now)
		}
	}
	return nil
}

func (s *Slot) handleEstablished(seg Segment, payload []byte, now httpofo.Tick) error {
	if seg.Flags.HasAll(FlagFIN) {
		return s.ackFinAndReturnToListen(seg, now)
	}
	if seg.Flags.HasAll(FlagACK) {
		s.lastAck = seg.ACK
		if !s.cell.empty() {
			cellEnd := s.cell.seq.Add(uint32(s.cell.len))
			if !seg.ACK.Before(cellEnd) {
				s.cell.clear()
			}
		}
	}
	if seg.DataLen > 0 {
		if seg.SEQ != s.rcvNxt {
			// Out-of-order: not accepted (spec.md §4.6); the peer will
			// retransmit until sequence alignment is achieved.
			return nil
		}
		s.rcvNxt = s.rcvNxt.Add(uint32(seg.DataLen))
		if err := s.emit(FlagACK, nil); err != nil {
			return err
		}
		s.cb.OnData(payload[:seg.DataLen])
	}
	return nil
}

// acceptSyn implements the LISTEN+SYN transition, shared by the initial
// arrival and by backlog drain.
func (s *Slot) acceptSyn(remoteAddr [4]byte, remotePort uint16, peerISN Seq) error {
	if !s.cb.OnAccept(remoteAddr, remotePort) {
		return nil
	}
	s.remoteAddr = remoteAddr
	s.remotePort = remotePort
	s.sndNxt = initialSendSeq
	s.rcvNxt = peerISN.Add(1)
	s.setState(StateSynReceived)
	return s.emit(FlagSYN|FlagACK, nil)
}

// ackFinAndReturnToListen implements the three FIN-handling transitions
// that all short-circuit to LISTEN (spec.md §4.6): ESTABLISHED+FIN,
// FIN_WAIT_1+FIN, FIN_WAIT_2+FIN. Only the ESTABLISHED case emits our own
// FIN alongside the ACK -- the FIN_WAIT cases already sent theirs as part
// of the active close that got the slot there.
func (s *Slot) ackFinAndReturnToListen(seg Segment, now httpofo.Tick) error {
	wasEstablished := s.state == StateEstablished
	s.rcvNxt = s.rcvNxt.Add(uint32(seg.DataLen) + 1)
	flags := FlagACK
	if wasEstablished {
		flags |= FlagFIN
	}
	if err := s.emit(flags, nil); err != nil {
		return err
	}
	s.cell.clear()
	s.setState(StateListen)
	s.drainBacklog(now)
	return nil
}

// resetToListen implements spec.md §4.6's reset rule.
func (s *Slot) resetToListen(now httpofo.Tick) {
	s.cell.clear()
	s.setState(StateListen)
	s.drainBacklog(now)
}

// drainBacklog implements spec.md §4.6 "Backlog drain": pop the first
// non-expired entry and reconsult the accept callback.
func (s *Slot) drainBacklog(now httpofo.Tick) {
	e, ok := s.backlog.popValid(now)
	if !ok || s.state != StateListen {
		return
	}
	s.acceptSyn(e.remoteAddr, e.remotePort, e.irs)
}

// setState transitions the slot and notifies the application when the
// transition crosses one of spec.md §6's three notification boundaries:
// reaching SYN_RECEIVED or ESTABLISHED, or returning to LISTEN from an
// active connection (as opposed to the initial CLOSED->LISTEN bootstrap,
// which is not itself a notification boundary).
func (s *Slot) setState(next State) {
	old := s.state
	s.state = next
	metrics.SlotState.Set(float64(next))
	crossesBoundary := next == StateSynReceived || next == StateEstablished ||
		(next == StateListen && old != StateListen && old != StateClosed)
	if crossesBoundary {
		s.cb.OnStateChange(old, next, s.remoteAddr, s.remotePort)
	}
}

// emit builds a header over s.scratch with the given flags and payload,
// computes its checksum, hands it to the sender, and advances sndNxt by
// one per SYN, one per FIN, and by len(payload) (spec.md §4.6 "Header
// emission").
func (s *Slot) emit(flags Flags, payload []byte) error {
	total := HeaderSize + len(payload)
	if total > len(s.scratch) {
		return httpofo.ErrShortBuffer
	}
	seq := s.sndNxt
	f, err := WriteHeader(s.scratch[:total], s.localPort, s.remotePort, seq, s.rcvNxt, flags, window)
	if err != nil {
		return err
	}
	copy(f.Payload(), payload)
	f.SetCRC(0)
	f.SetCRC(Checksum(s.localAddr, s.remoteAddr, f.RawData()))

	if err := s.sender.SendTCP(s.remoteAddr, f.RawData()); err != nil {
		return err
	}
	metrics.SegmentsOut.With(prometheus.Labels{"flags": flags.String()}).Inc()
	adv := uint32(len(payload))
	if flags.HasAll(FlagSYN) {
		adv++
	}
	if flags.HasAll(FlagFIN) {
		adv++
	}
	s.sndNxt = s.sndNxt.Add(adv)
	return nil
}
