package comm

import (
	"fmt"
	"sync"

	log "github.com/golang/glog"

	"github.com/opencoupler/core/internal/core"
)

// message is the envelope carried over an in-memory pipe: a Kind tag plus
// whichever payload fields that kind uses. Keeping a single envelope type
// (instead of separate typed channels per Kind) lets MemPrimaryChannel
// preserve strict FIFO ordering across scalar/bool/bbox traffic, matching
// the "messages within one channel are ordered FIFO" guarantee of.
type message struct {
	kind Kind
	scalar float64
	flag bool
	bbox BoundingBoxMessage
	meshID core.MeshID
	buf []float64
	ids []int
	str string
}

// pipe is a unidirectional, unbuffered-enough, closable channel of messages.
// Two pipes (one per direction) back every in-memory primary or distributed
// channel, mirroring how blb's mem*Connection types stand in for a real RPC
// transport in tests (client/blb/mem_master_conn.go).
type pipe struct {
	ch chan message
	once sync.Once
	closed chan struct{}
}

func newPipe() *pipe {
	return &pipe{ch: make(chan message, 64), closed: make(chan struct{})}
}

func (p *pipe) send(m message) error {
	select {
	case <-p.closed:
		return fmt.Errorf("send on closed channel: %w", core.ErrTransportClosed.Error())
	default:
	}
	select {
	case p.ch <- m:
		return nil
	case <-p.closed:
		return fmt.Errorf("send on closed channel: %w", core.ErrTransportClosed.Error())
	}
}

func (p *pipe) receive(want Kind) (message, error) {
	select {
	case m, ok := <-p.ch:
		if !ok {
			return message{}, fmt.Errorf("receive on closed channel: %w", core.ErrTransportClosed.Error())
		}
		if m.kind != want {
			return message{}, fmt.Errorf("expected message kind %d, got %d: %w", want, m.kind, core.ErrProtocolOrder.Error())
		}
		return m, nil
	case <-p.closed:
		return message{}, fmt.Errorf("receive on closed channel: %w", core.ErrTransportClosed.Error())
	}
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.closed) })
}

// MemPrimaryChannel is an in-memory PrimaryChannel backed by a pair of
// pipes, suitable for single-process tests of the coupling scheme and
// solver interface without a real transport.
type MemPrimaryChannel struct {
	out, in *pipe
}

// NewMemPrimaryPair returns two ends of an in-memory primary channel, each
// ready to be handed to one side of a simulated participant pair.
func NewMemPrimaryPair() (a, b *MemPrimaryChannel) {
	ab := newPipe()
	ba := newPipe()
	return &MemPrimaryChannel{out: ab, in: ba}, &MemPrimaryChannel{out: ba, in: ab}
}

// Handshake exchanges identifying strings.
func (c *MemPrimaryChannel) Handshake(localID string) (string, error) {
	if err := c.out.send(message{kind: KindHandshake, str: localID}); err != nil {
		return "", err
	}
	m, err := c.in.receive(KindHandshake)
	if err != nil {
		return "", err
	}
	return m.str, nil
}

// SendScalar implements PrimaryChannel.
func (c *MemPrimaryChannel) SendScalar(v float64) error {
	return c.out.send(message{kind: KindScalar, scalar: v})
}

// ReceiveScalar implements PrimaryChannel.
func (c *MemPrimaryChannel) ReceiveScalar() (float64, error) {
	m, err := c.in.receive(KindScalar)
	return m.scalar, err
}

// SendBool implements PrimaryChannel.
func (c *MemPrimaryChannel) SendBool(v bool) error {
	return c.out.send(message{kind: KindBool, flag: v})
}

// ReceiveBool implements PrimaryChannel.
func (c *MemPrimaryChannel) ReceiveBool() (bool, error) {
	m, err := c.in.receive(KindBool)
	return m.flag, err
}

// SendBoundingBox implements PrimaryChannel.
func (c *MemPrimaryChannel) SendBoundingBox(msg BoundingBoxMessage) error {
	return c.out.send(message{kind: KindBoundingBox, bbox: msg})
}

// ReceiveBoundingBox implements PrimaryChannel.
func (c *MemPrimaryChannel) ReceiveBoundingBox() (BoundingBoxMessage, error) {
	m, err := c.in.receive(KindBoundingBox)
	return m.bbox, err
}

// Close implements PrimaryChannel by shutting both pipes down; no close
// handshake is exchanged with the peer.
func (c *MemPrimaryChannel) Close() error {
	c.out.close()
	c.in.close()
	return nil
}

// MemDistributedChannel is an in-memory DistributedChannel.
type MemDistributedChannel struct {
	out, in *pipe
}

// NewMemDistributedPair returns two ends of an in-memory distributed
// channel.
func NewMemDistributedPair() (a, b *MemDistributedChannel) {
	ab := newPipe()
	ba := newPipe()
	return &MemDistributedChannel{out: ab, in: ba}, &MemDistributedChannel{out: ba, in: ab}
}

// SendMeshBuffer implements DistributedChannel.
func (c *MemDistributedChannel) SendMeshBuffer(meshID core.MeshID, dim int, values []float64) error {
	buf := make([]float64, len(values))
	copy(buf, values)
	return c.out.send(message{kind: KindMeshBuffer, meshID: meshID, buf: buf})
}

// ReceiveMeshBuffer implements DistributedChannel.
func (c *MemDistributedChannel) ReceiveMeshBuffer(meshID core.MeshID, dim int) ([]float64, error) {
	m, err := c.in.receive(KindMeshBuffer)
	if err != nil {
		return nil, err
	}
	if m.meshID != meshID {
		return nil, fmt.Errorf("expected buffer for mesh %v, got %v: %w", meshID, m.meshID, core.ErrProtocolPayload.Error())
	}
	return m.buf, nil
}

// SendGlobalBuffer implements DistributedChannel.
func (c *MemDistributedChannel) SendGlobalBuffer(dim int, values []float64) error {
	buf := make([]float64, len(values))
	copy(buf, values)
	return c.out.send(message{kind: KindGlobalData, buf: buf})
}

// ReceiveGlobalBuffer implements DistributedChannel.
func (c *MemDistributedChannel) ReceiveGlobalBuffer(dim int) ([]float64, error) {
	m, err := c.in.receive(KindGlobalData)
	if err != nil {
		return nil, err
	}
	if len(m.buf) != dim {
		return nil, fmt.Errorf("expected global buffer of length %d, got %d: %w", dim, len(m.buf), core.ErrProtocolPayload.Error())
	}
	return m.buf, nil
}

// SendIDs implements DistributedChannel.
func (c *MemDistributedChannel) SendIDs(ids []int) error {
	cp := make([]int, len(ids))
	copy(cp, ids)
	return c.out.send(message{kind: KindIDs, ids: cp})
}

// ReceiveIDs implements DistributedChannel.
func (c *MemDistributedChannel) ReceiveIDs() ([]int, error) {
	m, err := c.in.receive(KindIDs)
	if err != nil {
		return nil, err
	}
	return m.ids, nil
}

// Close implements DistributedChannel.
func (c *MemDistributedChannel) Close() error {
	c.out.close()
	c.in.close()
	return nil
}

// MemCommunication pairs a primary channel with per-mesh distributed
// channels, standing in for a full Communication to one peer.
type MemCommunication struct {
	primary PrimaryChannel

	lock sync.Mutex
	distributed map[core.MeshID]DistributedChannel
}

// NewMemCommunication wraps an already-connected primary channel.
func NewMemCommunication(primary PrimaryChannel) *MemCommunication {
	return &MemCommunication{primary: primary, distributed: make(map[core.MeshID]DistributedChannel)}
}

// Primary implements Communication.
func (c *MemCommunication) Primary() PrimaryChannel { return c.primary }

// ConfigurePartitions implements Communication.
func (c *MemCommunication) ConfigurePartitions(meshID core.MeshID, ch DistributedChannel) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.distributed[meshID] = ch
}

// Distributed implements Communication.
func (c *MemCommunication) Distributed(meshID core.MeshID) (DistributedChannel, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	ch, ok := c.distributed[meshID]
	if !ok {
		return nil, fmt.Errorf("no distributed channel configured for mesh %v: %w", meshID, core.ErrInvalidState.Error())
	}
	return ch, nil
}

// PreConnectSecondaryRanks is a no-op for the in-memory transport: all
// secondary-rank pipes are already live once ConfigurePartitions is called.
func (c *MemCommunication) PreConnectSecondaryRanks() error {
	log.V(1).Info("in-memory transport: pre-connect is a no-op")
	return nil
}

// CloseAll implements Communication.
func (c *MemCommunication) CloseAll() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	_ = c.primary.Close()
	for _, ch := range c.distributed {
		_ = ch.Close()
	}
	return nil
}
