package push

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"GoldPull/internal/domain/models"
	dservice "GoldPull/internal/domain/service"
	"GoldPull/pkg/logger"
	"GoldPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	sent []models.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification) (*dservice.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, n)
	return &dservice.SendResult{MessageID: "projects/x/messages/1"}, nil
}

type fakeOps struct {
	events []models.AlarmFiredEvent
	err    error
}

func (f *fakeOps) SendAlarm(_ context.Context, ev models.AlarmFiredEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

var fired = models.AlarmFiredEvent{
	AlarmID:      "a1",
	ProductCode:  "USDTRY",
	Message:      "Dolar sell rose to 35.10 (target 35.00)",
	CurrentPrice: 35.1,
	TargetPrice:  35,
}

func TestDispatcherSendsPushAndOps(t *testing.T) {
	n := &fakeNotifier{}
	ops := &fakeOps{}
	d := NewDispatcher(n, ops, metrics.Nop{}, logger.Nop())

	d.NotifyAlarm(context.Background(), models.Alarm{ID: "a1", PushToken: "device-token"}, fired)

	require.Len(t, n.sent, 1)
	msg := n.sent[0]
	assert.Equal(t, "device-token", msg.Token)
	assert.Equal(t, "Price alarm: USDTRY", msg.Title)
	assert.Equal(t, fired.Message, msg.Body)
	assert.Equal(t, "35.1", msg.Data["currentPrice"])
	assert.Equal(t, "35", msg.Data["targetPrice"])
	assert.Len(t, ops.events, 1)
}

func TestDispatcherSkipsPushWithoutToken(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(n, nil, metrics.Nop{}, logger.Nop())

	d.NotifyAlarm(context.Background(), models.Alarm{ID: "a1"}, fired)
	assert.Empty(t, n.sent)
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	n := &fakeNotifier{err: errors.New("unregistered token")}
	ops := &fakeOps{err: errors.New("telegram down")}
	d := NewDispatcher(n, ops, metrics.Nop{}, logger.Nop())

	assert.NotPanics(t, func() {
		d.NotifyAlarm(context.Background(), models.Alarm{ID: "a1", PushToken: "tok"}, fired)
	})
	assert.Len(t, ops.events, 1, "ops still notified after a push failure")
}

func TestFCMWithoutCredentialsIsNoop(t *testing.T) {
	for _, file := range []string{"", filepath.Join(t.TempDir(), "missing.json")} {
		f := NewFCM(file, "", logger.Nop())
		res, err := f.Send(context.Background(), models.Notification{Token: "tok", Title: "t"})
		assert.NoError(t, err)
		assert.Nil(t, res)
		assert.False(t, f.Enabled(context.Background()))
	}
}

func TestNopNotifier(t *testing.T) {
	res, err := Nop{}.Send(context.Background(), models.Notification{Token: "tok"})
	assert.NoError(t, err)
	assert.Nil(t, res)
}
