package socket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FrameType Engine.IO 帧类型（文本帧首字符）
type FrameType byte

const (
	FrameOpen    FrameType = '0'
	FrameClose   FrameType = '1'
	FramePing    FrameType = '2'
	FramePong    FrameType = '3'
	FrameMessage FrameType = '4'
	FrameUpgrade FrameType = '5'
	FrameNoop    FrameType = '6'
)

// PacketType Socket.IO 包类型（Engine.IO message 帧的第二个字符）
type PacketType byte

const (
	PacketConnect     PacketType = '0'
	PacketDisconnect  PacketType = '1'
	PacketEvent       PacketType = '2'
	PacketAck         PacketType = '3'
	PacketError       PacketType = '4'
	PacketBinaryEvent PacketType = '5'
	PacketBinaryAck   PacketType = '6'
)

// ErrBinaryPacket is returned for binary attachments, which this client does not speak.
var ErrBinaryPacket = errors.New("binary socket.io packets are not supported")

// Handshake Engine.IO open 帧携带的握手参数
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // ms
	PingTimeout  int      `json:"pingTimeout"`  // ms
}

// Frame is one decoded Engine.IO text frame. Packet is set for FrameMessage only.
type Frame struct {
	Type   FrameType
	Data   string
	Packet *Packet
}

// Packet Socket.IO 包
type Packet struct {
	Type      PacketType
	Namespace string // 为空表示默认命名空间 "/"
	ID        *int   // ack id，可选
	Data      json.RawMessage
}

// NewEventPacket 创建事件包，data 序列化为 [event, args...]
func NewEventPacket(id *int, event string, args ...any) (*Packet, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event, err)
	}
	return &Packet{Type: PacketEvent, ID: id, Data: data}, nil
}

// NewAckPacket 创建 ack 包，data 序列化为 [args...]
func NewAckPacket(id int, args ...any) (*Packet, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ack %d: %w", id, err)
	}
	return &Packet{Type: PacketAck, ID: &id, Data: data}, nil
}

// EncodeFrame 编码 Engine.IO 帧
func EncodeFrame(t FrameType, data string) []byte {
	return append([]byte{byte(t)}, data...)
}

// EncodePacket 编码 Socket.IO 包为完整的 Engine.IO message 帧
func EncodePacket(p *Packet) ([]byte, error) {
	switch p.Type {
	case PacketBinaryEvent, PacketBinaryAck:
		return nil, ErrBinaryPacket
	}

	var b strings.Builder
	b.WriteByte(byte(FrameMessage))
	b.WriteByte(byte(p.Type))

	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}

	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}

	if len(p.Data) > 0 {
		b.Write(p.Data)
	}

	return []byte(b.String()), nil
}

// DecodeFrame 解码 Engine.IO 文本帧，message 帧同时解出 Socket.IO 包
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	frame := &Frame{Type: FrameType(data[0]), Data: string(data[1:])}
	switch frame.Type {
	case FrameOpen, FrameClose, FramePing, FramePong, FrameUpgrade, FrameNoop:
		return frame, nil
	case FrameMessage:
		packet, err := DecodePacket(frame.Data)
		if err != nil {
			return nil, err
		}
		frame.Packet = packet
		return frame, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", data[0])
	}
}

// DecodePacket 解码 Socket.IO 包（不含 Engine.IO 帧类型前缀）
func DecodePacket(s string) (*Packet, error) {
	if s == "" {
		return nil, fmt.Errorf("empty packet")
	}

	p := &Packet{Type: PacketType(s[0])}
	switch p.Type {
	case PacketConnect, PacketDisconnect, PacketEvent, PacketAck, PacketError:
	case PacketBinaryEvent, PacketBinaryAck:
		return nil, ErrBinaryPacket
	default:
		return nil, fmt.Errorf("unknown packet type %q", s[0])
	}
	rest := s[1:]

	// 命名空间以 '/' 开头，以 ',' 结束
	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return nil, fmt.Errorf("invalid packet id %q: %w", rest[:digits], err)
		}
		p.ID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			if p.Type != PacketError {
				return nil, fmt.Errorf("invalid packet payload: %q", rest)
			}
			// 部分服务端的错误包直接携带纯文本
			quoted, _ := json.Marshal(rest)
			rest = string(quoted)
		}
		p.Data = json.RawMessage(rest)
	}

	return p, nil
}

// Args 将 EVENT/ACK 包的 data 拆成参数数组
func (p *Packet) Args() ([]json.RawMessage, error) {
	if len(p.Data) == 0 {
		return nil, nil
	}

	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil {
		return nil, fmt.Errorf("packet data is not an array: %w", err)
	}
	return args, nil
}

// Event 返回 EVENT 包的事件名和参数
func (p *Packet) Event() (string, []json.RawMessage, error) {
	args, err := p.Args()
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("event packet without name")
	}

	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	return name, args[1:], nil
}

// ParseHandshake 解析 open 帧
func ParseHandshake(data string) (*Handshake, error) {
	var hs Handshake
	if err := json.Unmarshal([]byte(data), &hs); err != nil {
		return nil, fmt.Errorf("invalid handshake: %w", err)
	}
	return &hs, nil
}
