package nvme

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bobuhiro11/gohba/block"
	"github.com/bobuhiro11/gohba/dma"
	"github.com/bobuhiro11/gohba/mmio"
	"github.com/bobuhiro11/gohba/poll"
)

// command carries the SQE fields the engine uses. Everything else is
// encoded as zero.
type command struct {
	opcode uint8
	nsid   uint32
	prp1   uint64
	prp2   uint64
	cdw10  uint32
	cdw11  uint32
	cdw12  uint32
}

// queuePair is one submission/completion ring pair. The producer tail
// is advanced by submit and published through the tail doorbell; the
// consumer head advances as completions are reaped, flipping the
// expected phase tag on every ring wrap.
type queuePair struct {
	id   uint32
	size uint32

	reg    mmio.Region
	stride uint64

	sqAddr uint64
	sq     []byte
	cqAddr uint64
	cq     []byte

	tail   uint32
	head   uint32
	sqHead uint32 // consumer head last reported by the device
	phase  uint16 // expected phase tag; 1 until the first wrap
	cid    uint16 // next command identifier, wraps at 16 bits

	budget poll.Budget
	log    *logrus.Entry
}

func newQueuePair(arena *dma.Arena, reg mmio.Region, stride uint64, id, size uint32,
	budget poll.Budget, log *logrus.Entry,
) (*queuePair, error) {
	q := &queuePair{
		id:     id,
		size:   size,
		reg:    reg,
		stride: stride,
		phase:  1,
		budget: budget,
		log:    log.WithField("qid", id),
	}

	var err error
	if q.sqAddr, q.sq, err = arena.Alloc(int(size)*SQESize, 4096); err != nil {
		return nil, err
	}

	if q.cqAddr, q.cq, err = arena.Alloc(int(size)*CQESize, 4096); err != nil {
		return nil, err
	}

	return q, nil
}

// full reports whether one more submission would catch up with the
// device's consumer head. Pushing into a full ring would not fault;
// it would silently overwrite an unacknowledged entry, so the guard
// is explicit and mandatory before every allocation.
func (q *queuePair) full() bool {
	return (q.tail+1)%q.size == q.sqHead%q.size
}

// submit allocates the next tail position and a fresh command
// identifier, encodes c there, and publishes it through the tail
// doorbell. The SQE stores happen-before the doorbell write; that
// ordering is a correctness invariant, not an optimization.
func (q *queuePair) submit(c *command) (uint16, error) {
	if q.full() {
		return 0, block.ErrNoFreeSlot
	}

	cid := q.cid
	q.cid++

	e := q.sq[q.tail*SQESize : (q.tail+1)*SQESize]
	for i := range e {
		e[i] = 0
	}

	e[0] = c.opcode
	binary.LittleEndian.PutUint16(e[2:4], cid)
	binary.LittleEndian.PutUint32(e[4:8], c.nsid)
	binary.LittleEndian.PutUint64(e[24:32], c.prp1)
	binary.LittleEndian.PutUint64(e[32:40], c.prp2)
	binary.LittleEndian.PutUint32(e[40:44], c.cdw10)
	binary.LittleEndian.PutUint32(e[44:48], c.cdw11)
	binary.LittleEndian.PutUint32(e[48:52], c.cdw12)

	q.tail = (q.tail + 1) % q.size
	q.reg.Write32(SQDoorbell(q.id, q.stride), q.tail)

	return cid, nil
}

// reap polls the completion queue until the entry for cid shows up
// with the expected phase tag, consuming (and acknowledging through
// the head doorbell) every entry it passes over. Each entry is
// consumed exactly once; its ring slot is then recycled.
func (q *queuePair) reap(cid uint16) (uint32, error) {
	var status uint16

	var dw0 uint32

	found := q.budget.Poll(func() bool {
		for {
			e := q.cq[q.head*CQESize : (q.head+1)*CQESize]

			// Volatile load: the device DMA engine writes
			// this dword behind the compiler's back.
			cs := mmio.Bytes(e).Read32(12)
			if uint16(cs>>16)&1 != q.phase {
				return false
			}

			q.sqHead = uint32(binary.LittleEndian.Uint16(e[8:10]))

			q.head++
			if q.head == q.size {
				q.head = 0
				q.phase ^= 1
			}

			q.reg.Write32(CQDoorbell(q.id, q.stride), q.head)

			if uint16(cs) == cid {
				dw0 = mmio.Bytes(e).Read32(0)
				status = uint16(cs >> 16)

				return true
			}

			// A completion for some other identifier:
			// recycle it and keep scanning.
		}
	})

	if !found {
		q.log.WithField("cid", cid).Error("command timeout")

		return 0, block.ErrCommandTimeout
	}

	// Bits 1..11 carry the status code and status code type; zero
	// is plain success.
	if sf := (status >> 1) & 0x7FF; sf != 0 {
		q.log.WithFields(logrus.Fields{
			"cid":    cid,
			"status": fmt.Sprintf("%#x", sf),
			"detail": DecodeStatus(sf),
		}).Error("command failed")

		return 0, &block.DeviceError{RawStatus: uint32(sf)}
	}

	return dw0, nil
}

// roundTrip submits c and waits for its completion.
func (q *queuePair) roundTrip(c *command) (uint32, error) {
	cid, err := q.submit(c)
	if err != nil {
		return 0, err
	}

	return q.reap(cid)
}
