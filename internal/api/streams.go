package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/feed"
	"github.com/hackgods/therapy-session-scheduling/internal/profile"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame on a subscription socket: either the full current result set or an
// error the stream recovered from.
type StreamMessage struct {
	Type  string `json:"type"`
	Items any    `json:"items,omitempty"`
	Error string `json:"error,omitempty"`
}

// serveStream upgrades the request and pumps sub onto the socket until either side goes away.
// The subscription must have been opened with ctx so closing the socket also stops the feed.
func serveStream[T any, R any](ctx context.Context, cancel context.CancelFunc, w http.ResponseWriter, r *http.Request,
	sub *feed.Subscription[T], convert func([]T) []R) {
	defer cancel()
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		return
	}
	defer conn.Close()

	log := zerolog.Ctx(r.Context())

	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg StreamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("stream write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case items, ok := <-sub.Updates():
			if !ok {
				return
			}
			if !write(StreamMessage{Type: "snapshot", Items: convert(items)}) {
				return
			}
		case err, ok := <-sub.Errors():
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("stream reload failed")
			if !write(StreamMessage{Type: "error", Error: err.Error()}) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func slotStreamHandler(slots *slot.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		sub, err := slots.Subscribe(ctx, chi.URLParam(r, "therapistID"))
		if err != nil {
			cancel()
			handleError(w, r, err)
			return
		}
		serveStream(ctx, cancel, w, r, sub, toSlotResponses)
	}
}

func appointmentStreamHandler(appointments *appointment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := profile.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		userID := chi.URLParam(r, "userID")

		ctx, cancel := context.WithCancel(r.Context())
		var sub *feed.Subscription[appointment.Appointment]
		if role == profile.RoleTherapist {
			sub, err = appointments.SubscribeByTherapist(ctx, userID)
		} else {
			sub, err = appointments.SubscribeByPatient(ctx, userID)
		}
		if err != nil {
			cancel()
			handleError(w, r, err)
			return
		}
		serveStream(ctx, cancel, w, r, sub, toAppointmentResponses)
	}
}

func consultationStreamHandler(consultations *consultation.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := profile.ParseRole(r.URL.Query().Get("role"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		userID := chi.URLParam(r, "userID")

		ctx, cancel := context.WithCancel(r.Context())
		var sub *feed.Subscription[consultation.Consultation]
		if role == profile.RoleTherapist {
			sub, err = consultations.SubscribeByTherapist(ctx, userID)
		} else {
			sub, err = consultations.SubscribeByPatient(ctx, userID)
		}
		if err != nil {
			cancel()
			handleError(w, r, err)
			return
		}
		serveStream(ctx, cancel, w, r, sub, toConsultationResponses)
	}
}
