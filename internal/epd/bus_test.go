package epd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// fakeConn records every SPI transfer together with the DC and CS levels at
// the moment of the transfer.
type fakeConn struct {
	writes [][]byte
	dcAtTx []gpio.Level
	csAtTx []gpio.Level
	dc     *gpiotest.Pin
	cs     *gpiotest.Pin
	err    error
}

func (c *fakeConn) String() string { return "fakeConn" }

func (c *fakeConn) Duplex() conn.Duplex { return conn.Half }

func (c *fakeConn) Tx(w, _ []byte) error {
	if c.err != nil {
		return c.err
	}
	c.writes = append(c.writes, bytes.Clone(w))
	c.dcAtTx = append(c.dcAtTx, c.dc.Read())
	c.csAtTx = append(c.csAtTx, c.cs.Read())
	return nil
}

// testBus wires a SPIBus to fake pins and a fake clock.
func testBus(t *testing.T) (*SPIBus, *fakeConn, *gpiotest.Pin, *gpiotest.Pin, *clockwork.FakeClock) {
	t.Helper()

	dc := &gpiotest.Pin{N: "dc", Num: 25}
	cs := &gpiotest.Pin{N: "cs", Num: 8, L: gpio.High}
	rst := &gpiotest.Pin{N: "rst", Num: 17, L: gpio.High}
	busy := &gpiotest.Pin{N: "busy", Num: 24}
	fc := &fakeConn{dc: dc, cs: cs}
	clk := clockwork.NewFakeClock()
	return NewSPIBus(fc, dc, cs, rst, busy, clk), fc, rst, busy, clk
}

func TestSendCommand(t *testing.T) {
	t.Parallel()

	bus, fc, _, _, _ := testBus(t)
	require.NoError(t, bus.SendCommand(0x12))

	require.Equal(t, [][]byte{{0x12}}, fc.writes)
	assert.Equal(t, gpio.Low, fc.dcAtTx[0], "command mode keeps DC low")
	assert.Equal(t, gpio.Low, fc.csAtTx[0], "the byte is clocked out under CS")
	assert.Equal(t, gpio.High, fc.cs.Read(), "CS released afterwards")
}

func TestSendData(t *testing.T) {
	t.Parallel()

	bus, fc, _, _, _ := testBus(t)
	require.NoError(t, bus.SendData(0xAB))

	require.Equal(t, [][]byte{{0xAB}}, fc.writes)
	assert.Equal(t, gpio.High, fc.dcAtTx[0], "data mode raises DC")
	assert.Equal(t, gpio.Low, fc.csAtTx[0])
	assert.Equal(t, gpio.High, fc.cs.Read())
}

func TestSendDataBulk(t *testing.T) {
	t.Parallel()

	t.Run("whole payload in one chip-select window", func(t *testing.T) {
		t.Parallel()

		bus, fc, _, _, _ := testBus(t)
		payload := make([]byte, 5000)
		for i := range payload {
			payload[i] = byte(i)
		}
		require.NoError(t, bus.SendDataBulk(payload))

		require.Len(t, fc.writes, 1, "bulk writes must not split the transfer")
		assert.Equal(t, payload, fc.writes[0])
		assert.Equal(t, gpio.High, fc.dcAtTx[0])
		assert.Equal(t, gpio.Low, fc.csAtTx[0])
		assert.Equal(t, gpio.High, fc.cs.Read())
	})

	t.Run("empty payload is a no-op", func(t *testing.T) {
		t.Parallel()

		bus, fc, _, _, _ := testBus(t)
		require.NoError(t, bus.SendDataBulk(nil))
		assert.Empty(t, fc.writes)
	})
}

func TestTransferErrorReleasesCS(t *testing.T) {
	t.Parallel()

	bus, fc, _, _, _ := testBus(t)
	fc.err = errors.New("wire fell off")

	require.Error(t, bus.SendCommand(0x20))
	assert.Equal(t, gpio.High, fc.cs.Read(), "CS must not stay asserted after a failed write")
}

func TestPulseResetHoldsBothEdges(t *testing.T) {
	t.Parallel()

	bus, _, rst, _, clk := testBus(t)

	done := make(chan error, 1)
	go func() { done <- bus.PulseReset() }()

	clk.BlockUntil(1)
	assert.Equal(t, gpio.Low, rst.Read(), "reset asserted during the first hold")

	clk.Advance(200 * time.Millisecond)
	clk.BlockUntil(1)
	assert.Equal(t, gpio.High, rst.Read(), "reset released for the second hold")

	clk.Advance(200 * time.Millisecond)
	require.NoError(t, <-done)
}

func TestWaitReady(t *testing.T) {
	t.Parallel()

	t.Run("already idle", func(t *testing.T) {
		t.Parallel()

		bus, _, _, _, _ := testBus(t)
		require.NoError(t, bus.WaitReady(DefaultBusyTimeout))
	})

	t.Run("clears after a few polls", func(t *testing.T) {
		t.Parallel()

		bus, _, _, busy, clk := testBus(t)
		require.NoError(t, busy.Out(gpio.High))

		done := make(chan error, 1)
		go func() { done <- bus.WaitReady(DefaultBusyTimeout) }()

		for i := 0; i < 3; i++ {
			clk.BlockUntil(1)
			clk.Advance(50 * time.Millisecond)
		}
		clk.BlockUntil(1)
		require.NoError(t, busy.Out(gpio.Low))
		clk.Advance(50 * time.Millisecond)

		require.NoError(t, <-done)
	})

	t.Run("times out exactly at the deadline", func(t *testing.T) {
		t.Parallel()

		bus, _, _, busy, clk := testBus(t)
		require.NoError(t, busy.Out(gpio.High))

		done := make(chan error, 1)
		go func() { done <- bus.WaitReady(5 * time.Second) }()

		// 99 polls bring the elapsed time to 4.95s, just short of the
		// deadline; the poller must still be waiting.
		for i := 0; i < 99; i++ {
			clk.BlockUntil(1)
			clk.Advance(50 * time.Millisecond)
		}
		clk.BlockUntil(1)
		select {
		case err := <-done:
			t.Fatalf("WaitReady returned before the deadline: %v", err)
		default:
		}

		clk.Advance(50 * time.Millisecond)
		err := <-done
		require.ErrorIs(t, err, ErrBusyTimeout)
	})
}

func TestCloseWithoutOwnedPort(t *testing.T) {
	t.Parallel()

	bus, _, _, _, _ := testBus(t)
	assert.NoError(t, bus.Close())
}
