package comm

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	log "github.com/golang/glog"
	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/opencoupler/core/internal/core"
)

// frame is the on-the-wire envelope for the TCP/gob transport. Bulk mesh and
// global buffers are snappy-compressed before being placed in Payload, since
// those dominate the byte count of a coupled run; control messages (scalars, bools, bounding boxes,
// handshakes) are sent uncompressed.
type frame struct {
	Kind Kind
	Scalar float64
	Flag bool
	BBox BoundingBoxMessage
	MeshID core.MeshID
	Str string
	Compressed bool
	Payload []byte // gob-encoded []float64, optionally snappy-compressed
	IDs []int
}

func encodeBuffer(values []float64) ([]byte, bool, error) {
	raw, err := gobEncode(values)
	if err != nil {
		return nil, false, err
	}
	compressed := snappy.Encode(nil, raw)
	if len(compressed) < len(raw) {
		return compressed, true, nil
	}
	return raw, false, nil
}

func decodeBuffer(payload []byte, compressed bool) ([]float64, error) {
	raw := payload
	if compressed {
		var err error
		raw, err = snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %v: %w", err, core.ErrTransport.Error())
		}
	}
	var values []float64
	if err := gobDecode(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// TCPChannel implements both PrimaryChannel and DistributedChannel over one
// TCP connection, framed with gob.
type TCPChannel struct {
	conn net.Conn
	lock sync.Mutex
	enc *gob.Encoder
	dec *gob.Decoder
}

// DialTCPChannel connects to addr and wraps the connection as a channel.
func DialTCPChannel(addr string) (*TCPChannel, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %v: %w", addr, err, core.ErrTransport.Error())
	}
	return newTCPChannel(conn), nil
}

// AcceptTCPChannel wraps an already-accepted connection as a channel.
func AcceptTCPChannel(conn net.Conn) *TCPChannel {
	return newTCPChannel(conn)
}

func newTCPChannel(conn net.Conn) *TCPChannel {
	r := bufio.NewReader(conn)
	return &TCPChannel{
		conn: conn,
		enc: gob.NewEncoder(conn),
		dec: gob.NewDecoder(r),
	}
}

func (c *TCPChannel) send(f frame) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.enc.Encode(&f); err != nil {
		return fmt.Errorf("send frame: %v: %w", err, core.ErrTransport.Error())
	}
	return nil
}

func (c *TCPChannel) receive(want Kind) (frame, error) {
	var f frame
	if err := c.dec.Decode(&f); err != nil {
		return frame{}, fmt.Errorf("receive frame: %v: %w", err, core.ErrTransport.Error())
	}
	if f.Kind != want {
		return frame{}, fmt.Errorf("expected message kind %d, got %d: %w", want, f.Kind, core.ErrProtocolOrder.Error())
	}
	return f, nil
}

// Handshake implements PrimaryChannel. Each call logs under a fresh UUID
// tag so concurrent handshakes on a shared listener can be told apart in
// logs; the identifying string itself is sent unchanged.
func (c *TCPChannel) Handshake(localID string) (string, error) {
	tag := uuid.New().String()
	log.V(1).Infof("primary handshake %s: sending %q", tag, localID)
	if err := c.send(frame{Kind: KindHandshake, Str: localID}); err != nil {
		return "", err
	}
	f, err := c.receive(KindHandshake)
	if err != nil {
		return "", err
	}
	return f.Str, nil
}

// SendScalar implements PrimaryChannel.
func (c *TCPChannel) SendScalar(v float64) error {
	return c.send(frame{Kind: KindScalar, Scalar: v})
}

// ReceiveScalar implements PrimaryChannel.
func (c *TCPChannel) ReceiveScalar() (float64, error) {
	f, err := c.receive(KindScalar)
	return f.Scalar, err
}

// SendBool implements PrimaryChannel.
func (c *TCPChannel) SendBool(v bool) error {
	return c.send(frame{Kind: KindBool, Flag: v})
}

// ReceiveBool implements PrimaryChannel.
func (c *TCPChannel) ReceiveBool() (bool, error) {
	f, err := c.receive(KindBool)
	return f.Flag, err
}

// SendBoundingBox implements PrimaryChannel.
func (c *TCPChannel) SendBoundingBox(msg BoundingBoxMessage) error {
	return c.send(frame{Kind: KindBoundingBox, BBox: msg})
}

// ReceiveBoundingBox implements PrimaryChannel.
func (c *TCPChannel) ReceiveBoundingBox() (BoundingBoxMessage, error) {
	f, err := c.receive(KindBoundingBox)
	return f.BBox, err
}

// SendMeshBuffer implements DistributedChannel.
func (c *TCPChannel) SendMeshBuffer(meshID core.MeshID, dim int, values []float64) error {
	payload, compressed, err := encodeBuffer(values)
	if err != nil {
		return err
	}
	return c.send(frame{Kind: KindMeshBuffer, MeshID: meshID, Payload: payload, Compressed: compressed})
}

// ReceiveMeshBuffer implements DistributedChannel.
func (c *TCPChannel) ReceiveMeshBuffer(meshID core.MeshID, dim int) ([]float64, error) {
	f, err := c.receive(KindMeshBuffer)
	if err != nil {
		return nil, err
	}
	if f.MeshID != meshID {
		return nil, fmt.Errorf("expected buffer for mesh %v, got %v: %w", meshID, f.MeshID, core.ErrProtocolPayload.Error())
	}
	return decodeBuffer(f.Payload, f.Compressed)
}

// SendGlobalBuffer implements DistributedChannel.
func (c *TCPChannel) SendGlobalBuffer(dim int, values []float64) error {
	payload, compressed, err := encodeBuffer(values)
	if err != nil {
		return err
	}
	return c.send(frame{Kind: KindGlobalData, Payload: payload, Compressed: compressed})
}

// ReceiveGlobalBuffer implements DistributedChannel.
func (c *TCPChannel) ReceiveGlobalBuffer(dim int) ([]float64, error) {
	f, err := c.receive(KindGlobalData)
	if err != nil {
		return nil, err
	}
	values, err := decodeBuffer(f.Payload, f.Compressed)
	if err != nil {
		return nil, err
	}
	if len(values) != dim {
		return nil, fmt.Errorf("expected global buffer of length %d, got %d: %w", dim, len(values), core.ErrProtocolPayload.Error())
	}
	return values, nil
}

// SendIDs implements DistributedChannel.
func (c *TCPChannel) SendIDs(ids []int) error {
	return c.send(frame{Kind: KindIDs, IDs: ids})
}

// ReceiveIDs implements DistributedChannel.
func (c *TCPChannel) ReceiveIDs() ([]int, error) {
	f, err := c.receive(KindIDs)
	if err != nil {
		return nil, err
	}
	return f.IDs, nil
}

// Close implements both PrimaryChannel and DistributedChannel.
func (c *TCPChannel) Close() error {
	return c.conn.Close()
}

// TCPCommunication is a Communication backed by one TCPChannel acting as the
// primary channel plus one TCPChannel per mesh for distributed traffic.
type TCPCommunication struct {
	primary PrimaryChannel

	lock sync.Mutex
	distributed map[core.MeshID]DistributedChannel
	dialAddrs map[core.MeshID]string
}

// NewTCPCommunication wraps an already-connected primary channel.
func NewTCPCommunication(primary PrimaryChannel) *TCPCommunication {
	return &TCPCommunication{primary: primary, distributed: make(map[core.MeshID]DistributedChannel), dialAddrs: make(map[core.MeshID]string)}
}

// Primary implements Communication.
func (c *TCPCommunication) Primary() PrimaryChannel { return c.primary }

// ConfigurePartitions implements Communication.
func (c *TCPCommunication) ConfigurePartitions(meshID core.MeshID, ch DistributedChannel) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.distributed[meshID] = ch
}

// RegisterDistributedAddr records an address to dial lazily for meshID's
// distributed channel, used when the address is only known after the
// bounding-box exchange phase.
func (c *TCPCommunication) RegisterDistributedAddr(meshID core.MeshID, addr string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.dialAddrs[meshID] = addr
}

// Distributed implements Communication.
func (c *TCPCommunication) Distributed(meshID core.MeshID) (DistributedChannel, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if ch, ok := c.distributed[meshID]; ok {
		return ch, nil
	}
	addr, ok := c.dialAddrs[meshID]
	if !ok {
		return nil, fmt.Errorf("no distributed channel configured for mesh %v: %w", meshID, core.ErrInvalidState.Error())
	}
	ch, err := DialTCPChannel(addr)
	if err != nil {
		return nil, err
	}
	c.distributed[meshID] = ch
	return ch, nil
}

// PreConnectSecondaryRanks dials every registered distributed address ahead
// of the bulk-exchange phase.
func (c *TCPCommunication) PreConnectSecondaryRanks() error {
	c.lock.Lock()
	addrs := make(map[core.MeshID]string, len(c.dialAddrs))
	for k, v := range c.dialAddrs {
		if _, connected := c.distributed[k]; !connected {
			addrs[k] = v
		}
	}
	c.lock.Unlock()

	for meshID, addr := range addrs {
		ch, err := DialTCPChannel(addr)
		if err != nil {
			return err
		}
		c.lock.Lock()
		c.distributed[meshID] = ch
		c.lock.Unlock()
	}
	return nil
}

// CloseAll implements Communication.
func (c *TCPCommunication) CloseAll() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	_ = c.primary.Close()
	for _, ch := range c.distributed {
		_ = ch.Close()
	}
	return nil
}
