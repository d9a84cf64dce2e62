package ctf

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/allocview/allocview/model"
)

// Parser decodes one CTF dump. It owns the decoding state shared by all
// packets: the backtrace cache, the location string tables and the
// allocation UID counter. Packets must therefore be consumed strictly in
// stream order.
type Parser struct {
	r      *reader
	order  binary.ByteOrder
	header Header
	info   Info

	cache      *backtraceCache
	locs       *locTables
	allocCount uint64

	packetCount int
}

// NewParser reads the magic number, the stream header and the mandatory
// trace info event, and returns a parser positioned at the first packet.
func NewParser(data []byte) (*Parser, error) {
	order, err := detectByteOrder(data)
	if err != nil {
		return nil, err
	}
	r := newReader(data, 0, order)
	if _, err := r.U32("magic"); err != nil {
		return nil, err
	}

	header, err := readHeader(r, false)
	if err != nil {
		return nil, errors.Wrap(err, "parsing stream header")
	}

	opcode, _, err := readEventHeader(r, header.Timestamp.Begin)
	if err != nil {
		return nil, errors.Wrap(err, "parsing trace info event")
	}
	if opcode != opInfo {
		return nil, errors.Errorf("expected the first event to be the trace info, got opcode %d", opcode)
	}
	info, err := readInfo(r, header.Version)
	if err != nil {
		return nil, errors.Wrap(err, "parsing trace info event")
	}

	return &Parser{
		r:      r,
		order:  order,
		header: header,
		info:   info,
		cache:  newBacktraceCache(),
		locs:   newLocTables(),
	}, nil
}

// Header returns the stream header.
func (p *Parser) Header() Header {
	return p.header
}

// Info returns the trace info event.
func (p *Parser) Info() Info {
	return p.info
}

// BigEndian reports whether the dump uses big-endian encoding.
func (p *Parser) BigEndian() bool {
	return p.order == binary.BigEndian
}

// AllocCount returns the number of allocation UIDs issued so far.
func (p *Parser) AllocCount() uint64 {
	return p.allocCount
}

// Pos returns the current byte offset within the dump.
func (p *Parser) Pos() int {
	return p.r.Pos()
}

// NextPacket parses the next packet header and returns a parser over its
// events. It returns (nil, nil) at a clean end of stream.
func (p *Parser) NextPacket() (*PacketParser, error) {
	if p.r.EOF() {
		return nil, nil
	}

	id := p.packetCount
	header, err := readHeader(p.r, true)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing header of packet %d", id)
	}
	if header.ContentSize > p.r.Remaining() {
		return nil, errors.Errorf("packet %d claims %d content bytes, only %d left in the dump",
			id, header.ContentSize, p.r.Remaining())
	}

	offset := p.r.Pos()
	content, err := p.r.Take(header.ContentSize, "packet content")
	if err != nil {
		return nil, err
	}
	p.packetCount++

	return &PacketParser{
		r:      newReader(content, offset, p.order),
		id:     id,
		header: header,
		parent: p,
	}, nil
}

// VerifyCache checks the stream's backtrace cache against the
// verification triple of a packet header.
func (p *Parser) VerifyCache(cc CacheCheck) error {
	return p.cache.Check(cc)
}

// PacketParser decodes the events of one packet. It borrows the Parser's
// decoding state; only one packet parser may be used at a time.
type PacketParser struct {
	r        *reader
	id       int
	header   Header
	parent   *Parser
	eventCnt int
}

// ID returns the zero-based index of the packet within the stream.
func (pp *PacketParser) ID() int {
	return pp.id
}

// Header returns the packet header.
func (pp *PacketParser) Header() Header {
	return pp.header
}

// NextEvent decodes the next event of the packet and its timestamp in
// microseconds. ok is false at the end of the packet.
func (pp *PacketParser) NextEvent() (clock uint64, ev Event, ok bool, err error) {
	if pp.r.EOF() {
		return 0, nil, false, nil
	}

	opcode, clock, err := readEventHeader(pp.r, pp.header.Timestamp.Begin)
	if err != nil {
		return 0, nil, false, errors.Wrapf(err, "packet %d, event %d", pp.id, pp.eventCnt)
	}

	switch {
	case opcode == opAlloc:
		ev, err = pp.readAlloc(false, 0)
	case opcode == opLocs:
		ev, err = readLocs(pp.r, pp.parent.locs)
	case opcode == opCollection:
		var id uint64
		id, err = pp.allocUIDFromDelta()
		ev = CollectionEvent{ID: model.AllocID(id)}
	case opcode == opPromotion:
		var id uint64
		id, err = pp.allocUIDFromDelta()
		ev = PromotionEvent{ID: model.AllocID(id)}
	case opcode >= opSmallAllocOffset+smallAllocMin && opcode <= opSmallAllocOffset+smallAllocMax:
		ev, err = pp.readAlloc(true, uint64(opcode-opSmallAllocOffset))
	case opcode == opInfo:
		err = errors.New("unexpected second trace info event")
	default:
		err = errors.Errorf("unexpected event opcode %d", opcode)
	}
	if err != nil {
		return 0, nil, false, errors.Wrapf(err, "packet %d, event %d", pp.id, pp.eventCnt)
	}

	pp.eventCnt++
	return clock, ev, true, nil
}

// readAlloc decodes an allocation event. Small allocations carry their
// length in the opcode itself, have a single sample, live on the minor
// heap and encode their codeword count as a u8 instead of a u16.
func (pp *PacketParser) readAlloc(small bool, smallLen uint64) (AllocEvent, error) {
	p := pp.parent

	ev := AllocEvent{ID: model.AllocID(p.allocCount)}
	p.allocCount++

	var err error
	if small {
		ev.Len = smallLen
		ev.NSamples = 1
		// Kind zero value is minor.
	} else {
		if ev.Len, err = pp.r.VarU64("allocation length"); err != nil {
			return AllocEvent{}, err
		}
		if ev.NSamples, err = pp.r.VarU64("allocation sample count"); err != nil {
			return AllocEvent{}, err
		}
		source, err := pp.r.U8("allocation source")
		if err != nil {
			return AllocEvent{}, err
		}
		if ev.Kind, err = allocKindFromSource(source); err != nil {
			return AllocEvent{}, err
		}
	}

	commonPrefLen, err := pp.r.VarU64("common backtrace prefix length")
	if err != nil {
		return AllocEvent{}, err
	}
	var nencoded uint64
	if small {
		n, err := pp.r.U8("encoded backtrace length")
		if err != nil {
			return AllocEvent{}, err
		}
		nencoded = uint64(n)
	} else {
		n, err := pp.r.U16("encoded backtrace length")
		if err != nil {
			return AllocEvent{}, err
		}
		nencoded = uint64(n)
	}

	ev.Backtrace, err = p.cache.Decode(pp.r, int(nencoded), int(commonPrefLen))
	if err != nil {
		return AllocEvent{}, errors.Wrapf(err, "decoding backtrace of allocation %d", ev.ID)
	}
	return ev, nil
}

// allocUIDFromDelta resolves a promotion/collection target: the wire
// carries the distance from the most recently issued allocation UID.
func (pp *PacketParser) allocUIDFromDelta() (uint64, error) {
	if pp.parent.allocCount == 0 {
		return 0, errors.New("event references an allocation, but none was seen yet")
	}
	delta, err := pp.r.VarU64("allocation UID delta")
	if err != nil {
		return 0, err
	}
	last := pp.parent.allocCount - 1
	if delta > last {
		return 0, errors.Errorf("allocation UID delta %d reaches before the first allocation (last UID %d)", delta, last)
	}
	return last - delta, nil
}
