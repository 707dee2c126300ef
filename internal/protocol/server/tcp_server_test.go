package server

import (
	"context"
	"encoding/hex"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/service"
	"gt06gateway/internal/protocol/gt06"
)

const (
	testIMEI   = "86713450902015"
	loginFrame = "78780d01086713450902015f00013ff10d0a"
)

type memRecorder struct {
	mu      sync.Mutex
	records []model.FrameRecord
}

func (r *memRecorder) Record(rec model.FrameRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *memRecorder) snapshot() []model.FrameRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FrameRecord(nil), r.records...)
}

type loginSpy struct {
	ch chan string
}

func (l *loginSpy) DeviceLoggedIn(imei string) { l.ch <- imei }

type device struct {
	t  *testing.T
	nc net.Conn
	r  *gt06.Reassembler
	q  [][]byte
}

func dial(t *testing.T, s *TCPServer) *device {
	t.Helper()
	nc, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return &device{t: t, nc: nc, r: gt06.NewReassembler(0)}
}

func (d *device) send(hexFrame string) {
	d.t.Helper()
	b, err := hex.DecodeString(hexFrame)
	require.NoError(d.t, err)
	_, err = d.nc.Write(b)
	require.NoError(d.t, err)
}

func (d *device) sendBytes(b []byte) {
	d.t.Helper()
	_, err := d.nc.Write(b)
	require.NoError(d.t, err)
}

// next returns the next frame from the server, or nil if none arrives before the timeout.
func (d *device) next(timeout time.Duration) []byte {
	d.t.Helper()
	buf := make([]byte, 512)
	deadline := time.Now().Add(timeout)
	for len(d.q) == 0 {
		d.nc.SetReadDeadline(deadline)
		n, err := d.nc.Read(buf)
		if n > 0 {
			frames, _ := d.r.Feed(buf[:n])
			d.q = append(d.q, frames...)
		}
		if err != nil {
			return nil
		}
	}
	f := d.q[0]
	d.q = d.q[1:]
	return f
}

func (d *device) expect(want []byte) {
	d.t.Helper()
	got := d.next(2 * time.Second)
	require.NotNil(d.t, got, "no frame received, want %x", want)
	assert.Equal(d.t, hex.EncodeToString(want), hex.EncodeToString(got))
}

func startServer(t *testing.T, opts Options, setup ...func(*TCPServer)) (*TCPServer, *memRecorder) {
	t.Helper()
	rec := &memRecorder{}
	opts.Addr = "127.0.0.1:0"
	opts.VerifyChecksum = true
	opts.Recorder = rec
	s := NewTCPServer(opts)
	for _, fn := range setup {
		fn(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})
	return s, rec
}

func login(t *testing.T, s *TCPServer) *device {
	t.Helper()
	d := dial(t, s)
	d.send(loginFrame)
	d.expect(gt06.Ack(gt06.LoginMsg, 1))
	return d
}

func TestLoginAndHeartbeat(t *testing.T) {
	s, rec := startServer(t, Options{})
	d := login(t, s)

	d.send("78780a13c60504000100528f750d0a")
	d.expect(gt06.Ack(gt06.HeartbeatMsg, 0x0052))

	devices, err := s.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	dev := devices[0]
	assert.Equal(t, testIMEI, dev.IMEI)
	assert.True(t, dev.Status.Known)
	assert.True(t, dev.Status.RelayCut)
	assert.True(t, dev.Status.Ignition)
	assert.Equal(t, uint8(5), dev.Status.Voltage)
	assert.Equal(t, uint8(4), dev.Status.GSM)

	records := rec.snapshot()
	require.Len(t, records, 2)
	assert.Equal(t, "login", records[0].Kind)
	require.NotNil(t, records[1].IMEI)
	assert.Equal(t, testIMEI, *records[1].IMEI)
	assert.Equal(t, "heartbeat", records[1].Kind)
}

func TestLocationUsesCachedStatus(t *testing.T) {
	s, rec := startServer(t, Options{})
	d := login(t, s)

	d.send("78780a13c60504000100528f750d0a")
	d.expect(gt06.Ack(gt06.HeartbeatMsg, 0x0052))
	d.send("78781f12190c040e211dc902bdd978054673d800980002d406c56d00aa33005023c30d0a")
	d.expect(gt06.Ack(gt06.LocationMsg, 0x0050))

	// the loop records a frame right after queueing its ack
	_, err := s.Devices(context.Background())
	require.NoError(t, err)

	records := rec.snapshot()
	last := records[len(records)-1]
	require.NotNil(t, last.Position)
	assert.Equal(t, testIMEI, last.Position.IMEI)
	assert.True(t, last.Position.Status.RelayCut, "basic location reads status from the session cache")
	assert.Equal(t, uint8(5), last.Position.Status.Voltage)
	assert.Less(t, last.Position.Latitude, 0.0)
}

func TestExtendedLocationRefreshesStatus(t *testing.T) {
	s, _ := startServer(t, Options{})
	d := login(t, s)

	d.send("78782022190c040e211d02bdd7a4054670803c0c7a0902d406c56d00aa33c6001032e40d0a")
	d.expect(gt06.Ack(gt06.ExtLocationMsg, 0x0010))

	devices, err := s.Devices(context.Background())
	require.NoError(t, err)
	st := devices[0].Status
	assert.True(t, st.Known)
	assert.True(t, st.Ignition)
	assert.True(t, st.RelayCut)
	assert.Equal(t, model.LevelUnknown, st.Voltage)
}

func TestSplitAndConcatenatedFrames(t *testing.T) {
	s, _ := startServer(t, Options{})
	d := dial(t, s)

	login, _ := hex.DecodeString(loginFrame)
	hb, _ := hex.DecodeString("78780a13c60504000100528f750d0a")
	stream := append(append([]byte{}, login...), hb...)

	d.sendBytes(stream[:7])
	time.Sleep(20 * time.Millisecond)
	d.sendBytes(stream[7:])

	d.expect(gt06.Ack(gt06.LoginMsg, 1))
	d.expect(gt06.Ack(gt06.HeartbeatMsg, 0x0052))
}

func TestBadFramesKeepConnection(t *testing.T) {
	s, rec := startServer(t, Options{})
	d := login(t, s)

	d.send("78780a13c60504000100528f760d0a") // checksum off by one
	d.send("78780a13c60504000100538f750d0a") // serial changed
	d.send("78780a13c60504000100528f750d0a")
	d.expect(gt06.Ack(gt06.HeartbeatMsg, 0x0052))

	var invalid int
	for _, r := range rec.snapshot() {
		if r.Kind == "invalid" {
			invalid++
			assert.Contains(t, r.Error, "checksum")
		}
	}
	assert.Equal(t, 2, invalid)
}

func TestUnhandledProtocolNotAcknowledged(t *testing.T) {
	s, _ := startServer(t, Options{})
	d := login(t, s)

	d.sendBytes(gt06.EncodeFrame(0x8A, []byte{1, 2, 3}, 5))
	assert.Nil(t, d.next(200*time.Millisecond))
}

func TestCommandLifecycle(t *testing.T) {
	s, _ := startServer(t, Options{})
	d := login(t, s)
	ctx := context.Background()

	cmd, err := s.Submit(ctx, model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock, Ref: "r1", Source: "api"})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), cmd.Serial)

	want, _ := gt06.Command("Relay,1#", 1)
	d.expect(want)

	d.sendBytes(gt06.EncodeFrame(gt06.CommandResponse2Msg, append([]byte{0, 0, 0, 0, 1}, "LOCK:fail"...), 2))
	time.Sleep(50 * time.Millisecond)
	pending, err := s.PendingCommands(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	d.sendBytes(gt06.EncodeFrame(gt06.CommandResponse2Msg, append([]byte{0, 0, 0, 0, 1}, "LOCK:success"...), 3))
	require.Eventually(t, func() bool {
		p, _ := s.PendingCommands(ctx)
		return len(p) == 0
	}, 2*time.Second, 20*time.Millisecond)

	assert.Nil(t, d.next(100*time.Millisecond), "command responses are not acknowledged")
}

func TestBareResponseTextConfirms(t *testing.T) {
	s, _ := startServer(t, Options{})
	d := login(t, s)
	ctx := context.Background()

	_, err := s.Submit(ctx, model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock})
	require.NoError(t, err)
	want, _ := gt06.Command("Relay,1#", 1)
	d.expect(want)

	d.sendBytes(gt06.EncodeFrame(gt06.CommandResponse2Msg, []byte("OK, relay cut"), 2))
	require.Eventually(t, func() bool {
		p, _ := s.PendingCommands(ctx)
		return len(p) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBatteryCheckSendsDeferredLock(t *testing.T) {
	s, _ := startServer(t, Options{BatteryLockDelay: 50 * time.Millisecond})
	d := login(t, s)

	_, err := s.Submit(context.Background(), model.CommandRequest{IMEI: testIMEI, Token: model.TokenBattery})
	require.NoError(t, err)
	unlock, _ := gt06.Command("Relay,0#", 1)
	d.expect(unlock)

	d.sendBytes(gt06.EncodeFrame(gt06.CommandResponseMsg, []byte("Relay OK"), 9))
	lock, _ := gt06.Command("Relay,1#", 2)
	d.expect(lock)

	pending, err := s.PendingCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.CommandLock, pending[0].Kind)
}

func TestSubmitOfflineAndDisconnect(t *testing.T) {
	s, _ := startServer(t, Options{})
	ctx := context.Background()

	_, err := s.Submit(ctx, model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock})
	assert.ErrorIs(t, err, service.ErrDeviceOffline)

	d := login(t, s)
	d.nc.Close()

	require.Eventually(t, func() bool {
		devices, _ := s.Devices(ctx)
		return len(devices) == 0
	}, 2*time.Second, 20*time.Millisecond)

	_, err = s.Submit(ctx, model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock})
	assert.ErrorIs(t, err, service.ErrDeviceOffline)
}

func TestReloginSupersedesOldConnection(t *testing.T) {
	spy := &loginSpy{ch: make(chan string, 4)}
	s, _ := startServer(t, Options{}, func(s *TCPServer) { s.AddLoginObserver(spy) })

	first := login(t, s)
	second := login(t, s)
	assert.Equal(t, testIMEI, <-spy.ch)
	assert.Equal(t, testIMEI, <-spy.ch)

	require.Eventually(t, func() bool {
		devices, _ := s.Devices(context.Background())
		return len(devices) == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Nil(t, first.next(200*time.Millisecond))

	_, err := s.Submit(context.Background(), model.CommandRequest{IMEI: testIMEI, Token: model.TokenUnlock})
	require.NoError(t, err)
	unlock, _ := gt06.Command("Relay,0#", 1)
	second.expect(unlock)
}

func TestStartBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := NewTCPServer(Options{Addr: ln.Addr().String()})
	assert.Error(t, s.Start(context.Background()))
}
