package as3935

import (
	"context"
	"sync"
)

// Op is a single register transfer seen by MockBus.
type Op struct {
	Write bool
	Reg   byte
	Value byte
}

// FaultFunc decides whether a transfer on reg should fail.
type FaultFunc func(reg byte) error

// MockBus is an in-memory register file implementing RegisterBus. It records every transfer
// so tests can assert on exact bus traffic without any hardware.
//
// Example usage:
//
//	bus := NewMockBus()
//	bus.Set(0x03, 0x08) // lightning interrupt pending
//	bus.Set(0x07, 17)
//	sensor, _ := New(ctx, bus)
//	reason, _ := sensor.InterruptReason(ctx)
type MockBus struct {
	mx     sync.Mutex
	regs   [addrMask + 1]byte
	ops    []Op
	faults FaultFunc
}

func NewMockBus() *MockBus {
	return &MockBus{}
}

// Fail installs a fault injector; pass nil to remove it.
func (m *MockBus) Fail(fn FaultFunc) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.faults = fn
}

// Set changes a register without recording a transfer.
func (m *MockBus) Set(reg, value byte) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.regs[reg&addrMask] = value
}

// Get returns a register without recording a transfer.
func (m *MockBus) Get(reg byte) byte {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.regs[reg&addrMask]
}

// Ops returns a copy of the recorded transfers.
func (m *MockBus) Ops() []Op {
	m.mx.Lock()
	defer m.mx.Unlock()
	res := make([]Op, len(m.ops))
	copy(res, m.ops)
	return res
}

// Writes returns the values written to reg in order.
func (m *MockBus) Writes(reg byte) []byte {
	m.mx.Lock()
	defer m.mx.Unlock()
	var res []byte
	for _, op := range m.ops {
		if op.Write && op.Reg == reg&addrMask {
			res = append(res, op.Value)
		}
	}
	return res
}

// Reset forgets recorded transfers.
func (m *MockBus) Reset() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.ops = nil
}

func (m *MockBus) ReadRegister(ctx context.Context, reg byte) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	reg &= addrMask
	if m.faults != nil {
		if err := m.faults(reg); err != nil {
			return 0x00, err
		}
	}
	m.ops = append(m.ops, Op{Reg: reg, Value: m.regs[reg]})
	return m.regs[reg], nil
}

func (m *MockBus) WriteRegister(ctx context.Context, reg byte, value byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	reg &= addrMask
	if m.faults != nil {
		if err := m.faults(reg); err != nil {
			return err
		}
	}
	m.ops = append(m.ops, Op{Write: true, Reg: reg, Value: value})
	m.regs[reg] = value
	return nil
}
