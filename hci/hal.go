package hci

// Packet announces a received packet to the upper layer. Its bytes are pulled
// with HAL.ReadData before HAL.PacketFinished is called.
type Packet struct {
	Type DataType
	Len  int
}

// Callbacks is implemented by the layer above the transport.
type Callbacks interface {
	// PacketReady is called once per reassembled packet, on the transport's
	// receive worker, with the transport's interpretation already set.
	PacketReady(p Packet)
}

// HAL is the transport boundary seen by the host.
type HAL interface {
	Open(cb Callbacks) error
	Close()
	// ReadData copies bytes of the current packet into b. It returns 0 when t
	// does not match the current packet or no packet is being read.
	ReadData(t DataType, b []byte) int
	// PacketFinished ends the current packet.
	PacketFinished(t DataType)
	// TransmitData sends one packet and returns len(data) or 0.
	TransmitData(t DataType, data []byte) int
}
