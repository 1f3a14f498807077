package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/Pavna06/Yogi.AI/internal/observe"
	"github.com/Pavna06/Yogi.AI/internal/session"
	"github.com/Pavna06/Yogi.AI/pkg/audio"
	"github.com/Pavna06/Yogi.AI/pkg/pose"
)

// Message types exchanged over /v1/ws.
const (
	TypeSelectPose = "select_pose"
	TypeFrame      = "frame"
	TypeSession    = "session"
	TypePose       = "pose"
	TypeUpdate     = "update"
	TypeError      = "error"
)

// maxMessageBytes bounds one inbound message. A 33-landmark frame is well
// under 4 KiB.
const maxMessageBytes = 64 << 10

// outboxSize is the number of outbound messages buffered per connection.
const outboxSize = 32

// ClientMessage is a message sent by the browser.
type ClientMessage struct {
	Type        string          `json:"type"`
	Pose        string          `json:"pose,omitempty"`
	TimestampMs int64           `json:"timestamp_ms,omitempty"`
	Keypoints   []pose.Keypoint `json:"keypoints,omitempty"`
}

// SessionMessage announces the session id once the connection is open.
type SessionMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// PoseMessage acknowledges a pose selection. Pose is null after a deselect.
type PoseMessage struct {
	Type string    `json:"type"`
	Pose *PoseView `json:"pose"`
}

// UpdateMessage carries the result of one frame.
type UpdateMessage struct {
	Type string `json:"type"`
	session.Update
}

// ErrorMessage reports a rejected client message. The connection stays open.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// outbound is one queued write: a JSON text message or a binary WAV clip.
type outbound struct {
	text any
	wav  []byte
}

// serveWS runs one coaching session for the lifetime of the connection.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	// The request context is cancelled once the handler returns; the session
	// summary must still be saved after that.
	base := context.WithoutCancel(r.Context())
	g, ctx := errgroup.WithContext(r.Context())
	outbox := make(chan outbound, outboxSize)

	send := func(ctx context.Context, m outbound) error {
		select {
		case outbox <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	player := audio.NewPacedPlayer(func(pctx context.Context, clip *audio.Clip) error {
		return send(pctx, outbound{wav: audio.EncodeWAV(clip)})
	}, audio.WithLeadTime(s.leadTime))

	sess := s.manager.Start(base, player)
	log := observe.Logger(observe.WithSessionID(r.Context(), sess.ID()))
	defer func() {
		if _, err := s.manager.End(base, sess); err != nil {
			log.Warn("session end", "err", err)
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case m := <-outbox:
				var err error
				if m.text != nil {
					err = wsjson.Write(ctx, conn, m.text)
				} else {
					err = conn.Write(ctx, websocket.MessageBinary, m.wav)
				}
				if err != nil {
					return fmt.Errorf("server: write: %w", err)
				}
			}
		}
	})

	g.Go(func() error {
		if err := send(ctx, outbound{text: SessionMessage{Type: TypeSession, SessionID: sess.ID()}}); err != nil {
			return err
		}
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			if typ != websocket.MessageText {
				if err := send(ctx, errorMessage(errors.New("binary messages are not accepted"))); err != nil {
					return err
				}
				continue
			}
			reply := s.handleMessage(ctx, sess, data)
			if err := send(ctx, outbound{text: reply}); err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Debug("websocket closed by client")
	case errors.Is(err, context.Canceled):
	default:
		log.Warn("websocket session ended with error", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleMessage applies one client message to sess and returns the reply.
func (s *Server) handleMessage(ctx context.Context, sess *session.Session, data []byte) any {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ErrorMessage{Type: TypeError, Error: fmt.Sprintf("malformed message: %v", err)}
	}

	switch msg.Type {
	case TypeSelectPose:
		p, err := sess.SelectPose(msg.Pose)
		if err != nil {
			return ErrorMessage{Type: TypeError, Error: err.Error()}
		}
		reply := PoseMessage{Type: TypePose}
		if p.ID != "" {
			v := viewPose(p)
			reply.Pose = &v
		}
		return reply
	case TypeFrame:
		u := sess.HandleFrame(ctx, msg.Keypoints, msg.TimestampMs)
		if u.Feedback == nil {
			u.Feedback = []pose.Feedback{}
		}
		return UpdateMessage{Type: TypeUpdate, Update: u}
	default:
		return ErrorMessage{Type: TypeError, Error: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

func errorMessage(err error) outbound {
	return outbound{text: ErrorMessage{Type: TypeError, Error: err.Error()}}
}
