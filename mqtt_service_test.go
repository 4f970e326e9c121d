package main

import (
	"encoding/json"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhilipZhang0907/smart-garment/mesh"
)

// newMQTTTestApp wires a loaded App to a connected mock broker the same way
// RunService does: frames on the frame topic go through handleFrame and
// results are published under the configured prefix.
func newMQTTTestApp(t *testing.T) (*App, *mesh.MockClient) {
	t.Helper()
	app := newTestApp(t)

	client := mesh.NewMockClient()
	client.SetConnected(true)
	app.Publisher = mesh.NewPublisher(client, app.Config.MQTT.PublishPrefix)

	token := client.Subscribe(app.Config.MQTT.FrameTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		f, err := mesh.DecodeFrame(msg.Payload())
		app.handleFrame(msg.Payload(), f, err)
	})
	require.NoError(t, token.Error())
	return app, client
}

func TestMQTTServiceConfigLoading(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, "garment/frames", app.Config.MQTT.FrameTopic)
	assert.Equal(t, "garment", app.Config.MQTT.PublishPrefix)
	assert.Empty(t, app.Config.MQTT.Broker)

	t.Setenv("MQTT_BROKER", "")
	client, err := mesh.InitMQTT(app.Config, app.handleFrame)
	require.NoError(t, err)
	assert.Nil(t, client, "MQTT stays disabled without a broker")
}

func TestMQTTService_FrameToPublish(t *testing.T) {
	app, client := newMQTTTestApp(t)

	for _, compress := range []bool{false, true} {
		require.NoError(t, client.SimulateFrame("garment/frames", uniformFrame("m1", 100, 200), compress))
	}

	processed, rejected, _ := app.StateTracker.Counters()
	assert.Equal(t, uint64(2), processed)
	assert.Equal(t, uint64(0), rejected)

	msg, ok := client.LastPublished("garment/scalars")
	require.True(t, ok, "scalars should be published")
	assert.True(t, msg.Retain)

	var res mesh.FrameResult
	require.NoError(t, json.Unmarshal(msg.Payload, &res))
	assert.Equal(t, "m1", res.FrameID)
	assert.Equal(t, []float64{0, 100 + mesh.Bias, 200 + mesh.Bias, 100 + mesh.Bias, 0, 200 + mesh.Bias}, res.Scalars)

	statsMsg, ok := client.LastPublished("garment/stats")
	require.True(t, ok, "stats should be published")
	var stats mesh.FrameStats
	require.NoError(t, json.Unmarshal(statsMsg.Payload, &stats))
	assert.Equal(t, testCovered, stats.Covered)
	assert.Equal(t, testTotal, stats.Vertices)
	assert.Equal(t, 200+mesh.Bias, stats.MaxScalar)

	last, ok := app.Publisher.LastStats()
	require.True(t, ok)
	assert.Equal(t, stats, last)
}

func TestMQTTService_BadFramesDropped(t *testing.T) {
	app, client := newMQTTTestApp(t)

	client.SimulateMessage("garment/frames", []byte("not a frame"))

	wrongShape := uniformFrame("wrong", 1, 1)
	wrongShape.Pants = wrongShape.Cloths
	require.NoError(t, client.SimulateFrame("garment/frames", wrongShape, false))

	processed, rejected, _ := app.StateTracker.Counters()
	assert.Equal(t, uint64(0), processed)
	assert.Equal(t, uint64(2), rejected)
	assert.Empty(t, client.GetPublishedMessages(), "rejected frames must not be published")

	// The stream keeps going after bad frames
	require.NoError(t, client.SimulateFrame("garment/frames", uniformFrame("good", 5, 5), false))
	assert.Equal(t, "good", app.StateTracker.Latest().FrameID)
}

func TestMQTTService_PublisherDisconnected(t *testing.T) {
	app, client := newMQTTTestApp(t)
	app.Publisher = mesh.NewPublisher(mesh.NewMockClient(), "garment")

	require.NoError(t, client.SimulateFrame("garment/frames", uniformFrame("offline", 1, 1), false))

	// Assembly still succeeds when results cannot be published
	require.NotNil(t, app.StateTracker.Latest())
	assert.Equal(t, "offline", app.StateTracker.Latest().FrameID)
	_, ok := app.Publisher.LastStats()
	assert.False(t, ok)
}
