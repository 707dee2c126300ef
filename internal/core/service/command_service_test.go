package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/core/model"
	"gt06gateway/internal/core/session"
	"gt06gateway/internal/protocol/gt06"
)

const testIMEI = "358899051025384"

type sentFrame struct {
	connID uint64
	frame  []byte
}

type fakeTransport struct {
	sent []sentFrame
	err  error
}

func (f *fakeTransport) Send(connID uint64, frame []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentFrame{connID, frame})
	return nil
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

type fakeScheduler struct {
	tasks []scheduled
}

func (f *fakeScheduler) After(d time.Duration, fn func()) {
	f.tasks = append(f.tasks, scheduled{d, fn})
}

type fakeFulfiller struct {
	done chan model.PendingCommand
}

func (f *fakeFulfiller) Fulfill(_ context.Context, cmd model.PendingCommand) error {
	f.done <- cmd
	return nil
}

type fakeStore struct {
	saved   []model.PendingCommand
	deleted []string
}

func (f *fakeStore) Save(cmd model.PendingCommand) { f.saved = append(f.saved, cmd) }
func (f *fakeStore) Delete(imei string)            { f.deleted = append(f.deleted, imei) }

type fixture struct {
	registry  *session.Registry
	transport *fakeTransport
	scheduler *fakeScheduler
	store     *fakeStore
	svc       CommandService
	sess      *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry:  session.NewRegistry(),
		transport: &fakeTransport{},
		scheduler: &fakeScheduler{},
		store:     &fakeStore{},
	}
	f.svc = NewCommandService(f.registry, f.transport, f.scheduler, CommandServiceOptions{
		BatteryLockDelay: 15 * time.Second,
		Store:            f.store,
	})
	f.sess = f.registry.Open("10.0.0.1:4000", time.Now())
	f.registry.Login(f.sess, testIMEI, time.Now())
	return f
}

func TestSubmitSendsCommandFrame(t *testing.T) {
	f := newFixture(t)

	cmd, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: "bloquear", Ref: "r1", Source: "api"})
	require.NoError(t, err)
	assert.Equal(t, model.CommandLock, cmd.Kind)
	assert.Equal(t, uint16(1), cmd.Serial)

	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, f.sess.ID, f.transport.sent[0].connID)
	want, _ := gt06.Command("Relay,1#", 1)
	assert.Equal(t, want, f.transport.sent[0].frame)

	pending, ok := f.svc.Pending(testIMEI)
	require.True(t, ok)
	assert.Equal(t, "r1", pending.Ref)
	require.Len(t, f.store.saved, 1)
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: "DESLIGAR"})
	assert.ErrorIs(t, err, model.ErrUnknownCommand)

	_, err = f.svc.Submit(model.CommandRequest{IMEI: "000000000000001", Token: model.TokenLock})
	assert.ErrorIs(t, err, ErrDeviceOffline)

	_, err = f.svc.Submit(model.CommandRequest{Token: model.TokenLock})
	assert.ErrorIs(t, err, ErrMissingIMEI)

	f.transport.err = errors.New("queue full")
	_, err = f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock})
	assert.Error(t, err)

	assert.Empty(t, f.svc.PendingAll())
	assert.Empty(t, f.transport.sent)
}

func TestLockConfirmation(t *testing.T) {
	f := newFixture(t)
	ful := &fakeFulfiller{done: make(chan model.PendingCommand, 1)}
	f.svc.RegisterFulfiller("file", ful)

	_, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock, Ref: "/cmd/" + testIMEI, Source: "file"})
	require.NoError(t, err)

	_, ok := f.svc.HandleResponse(f.sess, "LOCK:fail")
	assert.False(t, ok)
	_, stillPending := f.svc.Pending(testIMEI)
	assert.True(t, stillPending, "a failed response leaves the command pending")

	confirmed, ok := f.svc.HandleResponse(f.sess, "LOCK:success")
	require.True(t, ok)
	assert.Equal(t, model.CommandLock, confirmed.Kind)
	_, stillPending = f.svc.Pending(testIMEI)
	assert.False(t, stillPending)
	assert.Equal(t, []string{testIMEI}, f.store.deleted)

	select {
	case got := <-ful.done:
		assert.Equal(t, "/cmd/"+testIMEI, got.Ref)
	case <-time.After(2 * time.Second):
		t.Fatal("fulfiller not called")
	}
	assert.Empty(t, f.scheduler.tasks)
}

func TestDecodedResponseConfirms(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock})
	require.NoError(t, err)

	msg, err := gt06.NewDecoder(true).Decode(gt06.EncodeFrame(gt06.CommandResponse2Msg, []byte("OK, relay cut"), 7))
	require.NoError(t, err)
	resp, ok := msg.Body.(*gt06.CommandResponse)
	require.True(t, ok)
	require.Equal(t, "OK, relay cut", resp.Text)

	confirmed, ok := f.svc.HandleResponse(f.sess, resp.Text)
	require.True(t, ok)
	assert.Equal(t, model.CommandLock, confirmed.Kind)
	assert.Empty(t, f.svc.PendingAll())
}

func TestSinglePendingPerDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenLock, Ref: "a"})
	require.NoError(t, err)
	_, err = f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenUnlock, Ref: "b"})
	require.NoError(t, err)

	all := f.svc.PendingAll()
	require.Len(t, all, 1)
	assert.Equal(t, model.CommandUnlock, all[0].Kind)
	assert.Equal(t, "b", all[0].Ref)
	assert.Equal(t, uint16(2), all[0].Serial)
	assert.Len(t, f.transport.sent, 2)
}

func TestResponseWithoutPendingOrLogin(t *testing.T) {
	f := newFixture(t)
	_, ok := f.svc.HandleResponse(f.sess, "Relay OK")
	assert.False(t, ok)

	anon := f.registry.Open("10.0.0.2:4000", time.Now())
	_, ok = f.svc.HandleResponse(anon, "success")
	assert.False(t, ok)
}

func TestBatteryCheckSchedulesLock(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenBattery, Ref: "r", Source: "api"})
	require.NoError(t, err)
	want, _ := gt06.Command("Relay,0#", 1)
	assert.Equal(t, want, f.transport.sent[0].frame)

	_, ok := f.svc.HandleResponse(f.sess, "Relay ok")
	require.True(t, ok)
	require.Len(t, f.scheduler.tasks, 1)
	assert.Equal(t, 15*time.Second, f.scheduler.tasks[0].delay)
	assert.Empty(t, f.svc.PendingAll(), "nothing pending until the timer fires")

	f.scheduler.tasks[0].fn()
	pending, ok := f.svc.Pending(testIMEI)
	require.True(t, ok)
	assert.Equal(t, model.CommandLock, pending.Kind)
	require.Len(t, f.transport.sent, 2)
	lock, _ := gt06.Command("Relay,1#", 2)
	assert.Equal(t, lock, f.transport.sent[1].frame)
}

func TestBatteryFollowUpDeviceGone(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(model.CommandRequest{IMEI: testIMEI, Token: model.TokenBattery})
	require.NoError(t, err)
	_, ok := f.svc.HandleResponse(f.sess, "success")
	require.True(t, ok)

	f.registry.Close(f.sess.ID)
	f.scheduler.tasks[0].fn()
	assert.Empty(t, f.svc.PendingAll())
	assert.Len(t, f.transport.sent, 1)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	f.svc.Restore([]*model.PendingCommand{{IMEI: testIMEI, Kind: model.CommandLock, Serial: 9}, nil, {IMEI: ""}})

	_, ok := f.svc.Pending(testIMEI)
	require.True(t, ok)
	_, ok = f.svc.HandleResponse(f.sess, "LOCK:success")
	assert.True(t, ok)
}

func TestIsConfirmation(t *testing.T) {
	tests := map[string]bool{
		"LOCK:success":   true,
		"Relay,1# OK":    true,
		"Cut off Petrol": false,
		"ELAY=Fail!":     false,
		"":               false,
	}
	for text, want := range tests {
		assert.Equal(t, want, IsConfirmation(text), text)
	}
}
