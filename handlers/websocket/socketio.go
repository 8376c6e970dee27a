package websocket

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// SetupSocketIO wires the sync protocol events to the coordinator. The
// engine-level ping interval/timeout bound how long a silently-dead channel
// can hold a stale membership before the disconnect path cleans it up.
func SetupSocketIO(coordinator *Coordinator) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetPingInterval(25 * time.Second)
	opts.SetPingTimeout(20 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		ch := &socketChannel{socket: socket}
		logrus.WithField("channel_id", ch.ID()).Info("Client connected")

		socket.On("join-document", func(datas ...any) {
			payload := eventPayload(datas)
			coordinator.Join(context.Background(), ch,
				stringField(payload, "documentId"), stringField(payload, "userId"))
		})

		socket.On("document-update", func(datas ...any) {
			payload := eventPayload(datas)
			coordinator.Update(context.Background(), ch,
				stringField(payload, "documentId"), stringField(payload, "content"),
				stringField(payload, "userId"))
		})

		socket.On("cursor-position", func(datas ...any) {
			payload := eventPayload(datas)
			coordinator.CursorPosition(ch,
				stringField(payload, "documentId"), payload["position"],
				stringField(payload, "userId"))
		})

		socket.On("leave-document", func(datas ...any) {
			payload := eventPayload(datas)
			coordinator.Leave(ch,
				stringField(payload, "documentId"), stringField(payload, "userId"))
		})

		socket.On("disconnect", func(datas ...any) {
			logrus.WithField("channel_id", ch.ID()).Info("Client disconnected")
			coordinator.Disconnect(ch)
		})
	})

	return srv
}

// socketChannel adapts a socket.io socket to the coordinator's Channel.
type socketChannel struct {
	socket *socketio.Socket
}

func (c *socketChannel) ID() string {
	return string(c.socket.Id())
}

func (c *socketChannel) Emit(event string, payload any) error {
	return c.socket.Emit(event, payload)
}

func eventPayload(datas []any) map[string]any {
	if len(datas) == 0 {
		return map[string]any{}
	}
	if payload, ok := datas[0].(map[string]any); ok {
		return payload
	}
	return map[string]any{}
}

func stringField(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return value
}
