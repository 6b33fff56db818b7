// Package config holds the configuration of a benchmark run. It is built once
// at startup from command line flags and handed to every component.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/m-lab/linkbench/metadata"
	"github.com/m-lab/linkbench/packet"
	"github.com/m-lab/linkbench/rate"
)

// Modes that a linkbench process can run in.
const (
	ModeTransmit = "tx"
	ModeReceive  = "rx"
	ModeAck      = "ack"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Transmit configures the rate sweep transmitter.
type Transmit struct {
	// PacketSize is the length of every packet.
	PacketSize int

	// SwitchInterval is the number of packets sent at each rate.
	SwitchInterval int64

	// SettleDelay is slept after every rate change.
	SettleDelay time.Duration

	// PacketGap is slept after every send.
	PacketGap time.Duration

	// Sync requests an acknowledgement for every packet.
	Sync bool

	// SendTimeout bounds a synchronous send.
	SendTimeout time.Duration

	// RxBuffer is passed to the transport on every rate change.
	RxBuffer int
}

// Receive configures the rate sweep receiver.
type Receive struct {
	// Timeout is how long a single receive waits. Too short a timeout ends
	// a run on a transient loss window; too long a timeout delays the report.
	Timeout time.Duration

	// SilenceTimeouts is the number of consecutive timeouts, once streaming,
	// that mark the end of the stream.
	SilenceTimeouts int

	// RxBuffer is the receive buffer size.
	RxBuffer int
}

// Ack configures the acknowledged-send benchmark.
type Ack struct {
	// PacketSize is the length of every payload.
	PacketSize int

	// SampleInterval is the number of attempts between two samples.
	SampleInterval int64

	// Packets bounds the number of logical packets. Zero is unbounded.
	Packets int64

	// SendTimeout is the transport's acknowledgement budget per attempt.
	SendTimeout time.Duration

	// DiagTimeout bounds the passive diagnostic read after each success.
	DiagTimeout time.Duration
}

// Config is the whole configuration of a run.
type Config struct {
	Mode string

	// Listen is the address of the local radio when one is needed.
	Listen string

	// Peer is the address of the remote radio.
	Peer string

	// Rates is the sweep order.
	Rates *rate.Table

	Transmit Transmit
	Receive  Receive
	Ack      Ack

	// ReportFormat is FormatText or FormatJSON.
	ReportFormat string

	// ReportFile, if set, receives the report instead of the standard output.
	// A name ending in ".gz" is compressed.
	ReportFile string

	// Metadata is copied into the report.
	Metadata []metadata.NameValue
}

// Default returns the settings of the ESP-NOW rate sweep tools.
func Default() Config {
	return Config{
		Mode:   ModeReceive,
		Listen: ":9797",
		Rates:  rate.Default(),
		Transmit: Transmit{
			PacketSize:     packet.MaxLength,
			SwitchInterval: 256,
			SettleDelay:    200 * time.Millisecond,
			SendTimeout:    100 * time.Millisecond,
			RxBuffer:       263 * 100,
		},
		Receive: Receive{
			Timeout:         time.Second,
			SilenceTimeouts: 1,
			RxBuffer:        263 * 100,
		},
		Ack: Ack{
			PacketSize:     32,
			SampleInterval: 200,
			SendTimeout:    100 * time.Millisecond,
			DiagTimeout:    100 * time.Millisecond,
		},
		ReportFormat: FormatText,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate reports the first configuration error, if any. Errors found here
// are fatal: no benchmark loop should start with an invalid configuration.
func (c *Config) Validate() error {
	if c.Rates == nil || c.Rates.Len() == 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, rate.ErrEmptyTable)
	}
	switch c.ReportFormat {
	case FormatText, FormatJSON:
	default:
		return invalid("unknown report format %q", c.ReportFormat)
	}
	switch c.Mode {
	case ModeTransmit:
		return c.validateTransmit()
	case ModeReceive:
		return c.validateReceive()
	case ModeAck:
		return c.validateAck()
	}
	return invalid("unknown mode %q", c.Mode)
}

func (c *Config) validateTransmit() error {
	tx := c.Transmit
	if c.Peer == "" {
		return invalid("tx mode needs a peer")
	}
	if tx.PacketSize > packet.MaxLength {
		return invalid("packet size %d exceeds %d", tx.PacketSize, packet.MaxLength)
	}
	// The largest sequence number is reached at the end of the sweep.
	last := int64(c.Rates.Len())*tx.SwitchInterval - 1
	if need := packet.MinLength(last); tx.PacketSize < need {
		return fmt.Errorf("%w: %w: packet size %d, need %d", ErrInvalid, packet.ErrPacketTooSmall, tx.PacketSize, need)
	}
	if tx.SwitchInterval <= 0 {
		return invalid("switch interval must be positive")
	}
	if tx.SettleDelay < 0 || tx.PacketGap < 0 {
		return invalid("delays must not be negative")
	}
	if tx.Sync && tx.SendTimeout <= 0 {
		return invalid("synchronous sends need a positive send timeout")
	}
	return nil
}

func (c *Config) validateReceive() error {
	rx := c.Receive
	if c.Listen == "" {
		return invalid("rx mode needs a listen address")
	}
	if rx.Timeout <= 0 {
		return invalid("receive timeout must be positive")
	}
	if rx.SilenceTimeouts < 1 {
		return invalid("silence timeouts must be at least 1")
	}
	if rx.RxBuffer <= 0 {
		return invalid("receive buffer must be positive")
	}
	return nil
}

func (c *Config) validateAck() error {
	a := c.Ack
	if c.Peer == "" && c.Listen == "" {
		return invalid("ack mode needs a peer or a listen address")
	}
	if a.PacketSize <= 0 || a.PacketSize > packet.MaxLength {
		return invalid("ack packet size %d out of range", a.PacketSize)
	}
	if a.SampleInterval <= 0 {
		return invalid("sample interval must be positive")
	}
	if a.Packets < 0 {
		return invalid("packet count must not be negative")
	}
	if a.SendTimeout <= 0 {
		return invalid("ack timeout must be positive")
	}
	return nil
}
