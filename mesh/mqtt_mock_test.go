package mesh

import (
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ mqtt.Client  = (*MockClient)(nil)
	_ mqtt.Token   = (*MockToken)(nil)
	_ mqtt.Message = (*mockMessage)(nil)
)

func TestMockToken(t *testing.T) {
	token := NewMockToken(nil)
	assert.True(t, token.Wait())
	assert.True(t, token.WaitTimeout(0))
	assert.NoError(t, token.Error())

	select {
	case <-token.Done():
	default:
		t.Fatal("Done() should be closed")
	}

	assert.EqualError(t, NewMockToken(errors.New("boom")).Error(), "boom")
}

func TestMockClient_ConnectDisconnect(t *testing.T) {
	client := NewMockClient()
	assert.False(t, client.IsConnected())

	called := false
	client.SetOnConnect(func(mqtt.Client) { called = true })
	require.NoError(t, client.Connect().Error())
	assert.True(t, client.IsConnected())
	assert.True(t, client.IsConnectionOpen())
	assert.True(t, called, "OnConnect handler should run")

	client.Disconnect(0)
	assert.False(t, client.IsConnected())
}

func TestMockClient_ConnectError(t *testing.T) {
	client := NewMockClient()
	client.SetConnectError(errors.New("refused"))

	called := false
	client.SetOnConnect(func(mqtt.Client) { called = true })
	assert.EqualError(t, client.Connect().Error(), "refused")
	assert.False(t, client.IsConnected())
	assert.False(t, called)
}

func TestMockClient_Publish(t *testing.T) {
	client := NewMockClient()

	assert.ErrorIs(t, client.Publish("a", 0, false, []byte("x")).Error(), mqtt.ErrNotConnected)

	client.SetConnected(true)
	require.NoError(t, client.Publish("a", 1, true, []byte("first")).Error())
	require.NoError(t, client.Publish("b", 0, false, "second").Error())
	require.NoError(t, client.Publish("a", 0, false, []byte("third")).Error())

	msgs := client.GetPublishedMessages()
	require.Len(t, msgs, 3)
	assert.Equal(t, MockMessage{Topic: "a", Payload: []byte("first"), QoS: 1, Retain: true}, msgs[0])
	assert.Equal(t, []byte("second"), msgs[1].Payload)

	last, ok := client.LastPublished("a")
	require.True(t, ok)
	assert.Equal(t, "third", string(last.Payload))

	_, ok = client.LastPublished("c")
	assert.False(t, ok)

	client.SetPublishError(errors.New("full"))
	assert.EqualError(t, client.Publish("a", 0, false, []byte("x")).Error(), "full")
	assert.Len(t, client.GetPublishedMessages(), 3)
}

func TestMockClient_SubscribeAndSimulate(t *testing.T) {
	client := NewMockClient()

	handler := func(_ mqtt.Client, msg mqtt.Message) {}
	assert.ErrorIs(t, client.Subscribe("t", 0, handler).Error(), mqtt.ErrNotConnected)

	client.SetConnected(true)
	var got []string
	require.NoError(t, client.Subscribe("t", 0, func(_ mqtt.Client, msg mqtt.Message) {
		got = append(got, msg.Topic()+":"+string(msg.Payload()))
	}).Error())
	assert.True(t, client.Subscribed("t"))

	client.SimulateMessage("t", []byte("hello"))
	client.SimulateMessage("other", []byte("ignored"))
	assert.Equal(t, []string{"t:hello"}, got)

	client.Unsubscribe("t")
	assert.False(t, client.Subscribed("t"))
	client.SimulateMessage("t", []byte("after"))
	assert.Len(t, got, 1)

	client.SetSubscribeError(errors.New("acl"))
	assert.EqualError(t, client.Subscribe("t", 0, handler).Error(), "acl")
}

func TestMockClient_AddRoute(t *testing.T) {
	client := NewMockClient()
	var payload []byte
	client.AddRoute("r", func(_ mqtt.Client, msg mqtt.Message) { payload = msg.Payload() })

	client.SimulateMessage("r", []byte("routed"))
	assert.Equal(t, "routed", string(payload))
}

func TestMockClient_SimulateFrame(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)

	var decoded *Frame
	client.Subscribe("frames", 0, func(_ mqtt.Client, msg mqtt.Message) {
		f, err := DecodeFrame(msg.Payload())
		require.NoError(t, err)
		decoded = f
	})

	f := &Frame{ID: "sim", Cloths: encodedGrid(2, 2), Pants: encodedGrid(1, 1)}
	require.NoError(t, client.SimulateFrame("frames", f, true))
	require.NotNil(t, decoded)
	assert.Equal(t, "sim", decoded.ID)
	assert.Equal(t, 101.0, decoded.Cloths.At(1, 1))
}
